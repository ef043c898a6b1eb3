package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
	"github.com/Amahseyn/car-dealer-gateway/pkg/util"
)

// View names one consumer of the aggregation pipeline.
type View string

const (
	// ViewPublic is the unauthenticated home feed: all three collections,
	// per-collection error isolation.
	ViewPublic View = "public"
	// ViewAdmin is the moderation view: full feed partitioned into
	// validated and pending queues, fail-fast.
	ViewAdmin View = "admin"
	// ViewMine is the owner view: collections pre-filtered upstream by
	// the session user's id, fail-fast.
	ViewMine View = "mine"
)

// Mutation names a write operation against the listings API.
type Mutation string

const (
	MutationCreate   Mutation = "create"
	MutationUpdate   Mutation = "update"
	MutationDelete   Mutation = "delete"
	MutationValidate Mutation = "validate"
)

// invalidations declares which views each mutation makes stale. Validation
// is staff-only and never touches the acting user's own inventory.
var invalidations = map[Mutation][]View{
	MutationCreate:   {ViewPublic, ViewAdmin, ViewMine},
	MutationUpdate:   {ViewPublic, ViewAdmin, ViewMine},
	MutationDelete:   {ViewPublic, ViewAdmin, ViewMine},
	MutationValidate: {ViewPublic, ViewAdmin},
}

// ErrStaleRun reports that a newer refresh for the same view started while
// this one was in flight; the late result was discarded, not installed.
var ErrStaleRun = errors.New("stale aggregation run discarded")

// Backend is what the service needs from the API client.
type Backend interface {
	Fetcher
	CollectionURL(t model.ListingType, filters url.Values) string
}

// Snapshot is one materialized view of the feed. Snapshots are replaced
// wholesale on every refresh; nothing mutates them in place.
type Snapshot struct {
	View      View                `json:"view"`
	Items     []model.ListingItem `json:"ads"`
	Pending   []model.ListingItem `json:"pending,omitempty"`
	Validated []model.ListingItem `json:"validated,omitempty"`
	Errors    []*CollectionError  `json:"-"`
	Version   string              `json:"version"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// SectionErrors renders the isolated-policy failures for the response body.
func (s *Snapshot) SectionErrors() map[string]string {
	if len(s.Errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Errors))
	for _, ce := range s.Errors {
		out[string(ce.Type)] = ce.Err.Error()
	}
	return out
}

// Service runs the aggregation pipeline per view and enforces the
// mutation-triggered refresh contract. Each refresh carries a run token;
// only the latest run for a view may install its result, so a slow fetch
// can never overwrite a newer one.
type Service struct {
	backend Backend

	mu        sync.Mutex
	snapshots map[View]*Snapshot
	latest    map[View]uuid.UUID
}

func NewService(backend Backend) *Service {
	return &Service{
		backend:   backend,
		snapshots: make(map[View]*Snapshot),
		latest:    make(map[View]uuid.UUID),
	}
}

// specs builds the three collection triples, applying the same filters to
// every collection.
func (s *Service) specs(filters url.Values) []CollectionSpec {
	specs := make([]CollectionSpec, 0, len(model.AllListingTypes))
	for _, t := range model.AllListingTypes {
		specs = append(specs, CollectionSpec{
			Type:  t,
			URL:   s.backend.CollectionURL(t, filters),
			Label: t.Label(),
		})
	}
	return specs
}

// Refresh re-runs the full pipeline for a view and installs the result.
// ownerID is only consulted for ViewMine, where it becomes the server-side
// user filter. A refresh that loses to a newer concurrent run returns
// ErrStaleRun and leaves the newer snapshot in place.
func (s *Service) Refresh(ctx context.Context, view View, ownerID int64) (*Snapshot, error) {
	runID := uuid.New()
	s.mu.Lock()
	s.latest[view] = runID
	s.mu.Unlock()

	snap, err := s.materialize(ctx, view, ownerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[view] != runID {
		return nil, ErrStaleRun
	}
	s.snapshots[view] = snap
	return snap, nil
}

// materialize runs fetch, order, and partition for one view.
func (s *Service) materialize(ctx context.Context, view View, ownerID int64) (*Snapshot, error) {
	snap := &Snapshot{View: view, FetchedAt: time.Now().UTC()}

	switch view {
	case ViewPublic:
		items, failures := AggregateIsolated(ctx, s.backend, s.specs(nil))
		snap.Items = Order(items)
		snap.Errors = failures

	case ViewAdmin:
		items, err := Aggregate(ctx, s.backend, s.specs(nil))
		if err != nil {
			return nil, err
		}
		ordered := Order(items)
		snap.Items = ordered
		snap.Validated, snap.Pending = Partition(ordered, ByValidation())

	case ViewMine:
		filters := url.Values{"user": []string{strconv.FormatInt(ownerID, 10)}}
		items, err := Aggregate(ctx, s.backend, s.specs(filters))
		if err != nil {
			return nil, err
		}
		snap.Items = Order(items)

	default:
		return nil, errors.New("unknown view " + string(view))
	}

	snap.Version = util.FeedVersion(snap.Items)
	return snap, nil
}

// Snapshot returns the current materialization of a view, if any.
func (s *Service) Snapshot(view View) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[view]
	return snap, ok
}

// AfterMutation re-runs the pipeline for every view the mutation declares
// stale and that is currently materialized. Mutation results are never
// patched into snapshots locally; the refetch is the only recovery path.
// An ownerID of 0 means the caller's identity is unknown; the owner view is
// then left alone rather than refreshed with a wrong filter.
func (s *Service) AfterMutation(ctx context.Context, m Mutation, ownerID int64) error {
	var firstErr error
	for _, view := range invalidations[m] {
		if view == ViewMine && ownerID == 0 {
			continue
		}
		if _, shown := s.Snapshot(view); !shown {
			continue
		}
		if _, err := s.Refresh(ctx, view, ownerID); err != nil && !errors.Is(err, ErrStaleRun) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// TagDetail tags a single fetched record the same way the aggregator
// would, for detail endpoints that bypass the pipeline.
func TagDetail(t model.ListingType, raw json.RawMessage) (model.ListingItem, error) {
	return parseListing(t, t.Label(), raw)
}
