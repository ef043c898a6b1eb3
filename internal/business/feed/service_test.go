package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func healthyBackend() *fakeBackend {
	return &fakeBackend{pages: map[string][]json.RawMessage{
		"listings/new-cars/":  {record(1, "2024-05-01T10:00:00Z", true, 10)},
		"listings/used-cars/": {record(2, "2024-05-03T10:00:00Z", false, 42)},
		"listings/havalehs/":  {record(3, "2024-05-02T10:00:00Z", true, 42)},
	}}
}

func TestRefreshPublicIsolatesFailures(t *testing.T) {
	backend := healthyBackend()
	backend.errs = map[string]error{"listings/used-cars/": errors.New("upstream down")}

	svc := NewService(backend)
	snap, err := svc.Refresh(context.Background(), ViewPublic, 0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("expected 2 items from healthy collections, got %d", len(snap.Items))
	}
	sections := snap.SectionErrors()
	if len(sections) != 1 || sections["used-cars"] == "" {
		t.Fatalf("expected used-cars section error, got %v", sections)
	}
	// Newest first across the surviving collections.
	if snap.Items[0].ID != 3 || snap.Items[1].ID != 1 {
		t.Fatalf("unexpected ordering: %v, %v", snap.Items[0].ID, snap.Items[1].ID)
	}
}

func TestRefreshAdminFailsWholesale(t *testing.T) {
	backend := healthyBackend()
	backend.errs = map[string]error{"listings/havalehs/": errors.New("upstream down")}

	svc := NewService(backend)
	if _, err := svc.Refresh(context.Background(), ViewAdmin, 0); err == nil {
		t.Fatalf("expected admin view to fail when any collection fails")
	}
	if _, ok := svc.Snapshot(ViewAdmin); ok {
		t.Fatalf("failed refresh must not install a snapshot")
	}
}

func TestRefreshAdminPartitionsQueue(t *testing.T) {
	svc := NewService(healthyBackend())
	snap, err := svc.Refresh(context.Background(), ViewAdmin, 0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Validated) != 2 || len(snap.Pending) != 1 {
		t.Fatalf("unexpected partition: %d validated, %d pending", len(snap.Validated), len(snap.Pending))
	}
	if snap.Pending[0].ID != 2 {
		t.Fatalf("expected listing 2 in the pending queue, got %d", snap.Pending[0].ID)
	}
	// Ordering survives the split.
	if snap.Validated[0].ID != 3 || snap.Validated[1].ID != 1 {
		t.Fatalf("validated queue out of order: %v", snap.Validated)
	}
}

func TestRefreshMineFiltersByOwner(t *testing.T) {
	backend := &fakeBackend{pages: map[string][]json.RawMessage{
		"listings/new-cars/?user=42":  {record(1, "2024-05-01T10:00:00Z", true, 42)},
		"listings/used-cars/?user=42": {},
		"listings/havalehs/?user=42":  {},
	}}

	svc := NewService(backend)
	snap, err := svc.Refresh(context.Background(), ViewMine, 42)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].OwnerID != 42 {
		t.Fatalf("unexpected owner feed: %v", snap.Items)
	}
	for _, ref := range backend.calls {
		if !strings.Contains(ref, "user=42") {
			t.Fatalf("owner filter missing from fetch %q", ref)
		}
	}
}

func TestRefreshStaleRunLoses(t *testing.T) {
	backend := healthyBackend()
	backend.started = make(chan struct{}, 3)
	hold := make(chan struct{})
	backend.hold = hold

	svc := NewService(backend)

	// First run blocks inside its three collection fetches.
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(context.Background(), ViewPublic, 0)
		firstDone <- err
	}()
	for i := 0; i < 3; i++ {
		<-backend.started
	}

	// Second run starts later and completes first.
	backend.mu.Lock()
	backend.hold = nil
	backend.mu.Unlock()
	winner, err := svc.Refresh(context.Background(), ViewPublic, 0)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}

	close(hold)
	if err := <-firstDone; !errors.Is(err, ErrStaleRun) {
		t.Fatalf("expected the late run to report ErrStaleRun, got %v", err)
	}

	current, ok := svc.Snapshot(ViewPublic)
	if !ok || current != winner {
		t.Fatalf("late run overwrote the newer snapshot")
	}
}

func TestAfterMutationRefreshesOnlyMaterializedViews(t *testing.T) {
	backend := healthyBackend()
	svc := NewService(backend)

	// Nothing materialized yet: a mutation triggers no fetches.
	if err := svc.AfterMutation(context.Background(), MutationCreate, 42); err != nil {
		t.Fatalf("AfterMutation: %v", err)
	}
	if got := backend.callCount(); got != 0 {
		t.Fatalf("expected no fetches before any view exists, got %d", got)
	}

	if _, err := svc.Refresh(context.Background(), ViewPublic, 0); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	backend.resetCalls()

	if err := svc.AfterMutation(context.Background(), MutationCreate, 42); err != nil {
		t.Fatalf("AfterMutation: %v", err)
	}
	if got := backend.callCount(); got != 3 {
		t.Fatalf("expected one full pipeline re-run, got %d fetches", got)
	}
	for _, ref := range backend.calls {
		if strings.Contains(ref, "user=") {
			t.Fatalf("public refresh must not carry an owner filter: %q", ref)
		}
	}
}

func TestValidateMutationLeavesOwnerViewAlone(t *testing.T) {
	backend := healthyBackend()
	backend.pages["listings/new-cars/?user=42"] = backend.pages["listings/new-cars/"]
	backend.pages["listings/used-cars/?user=42"] = nil
	backend.pages["listings/havalehs/?user=42"] = nil

	svc := NewService(backend)
	if _, err := svc.Refresh(context.Background(), ViewMine, 42); err != nil {
		t.Fatalf("Refresh mine: %v", err)
	}
	backend.resetCalls()

	// Validation changes public and admin state, never the owner's list.
	if err := svc.AfterMutation(context.Background(), MutationValidate, 42); err != nil {
		t.Fatalf("AfterMutation: %v", err)
	}
	if got := backend.callCount(); got != 0 {
		t.Fatalf("expected owner view untouched by validate, got %d fetches", got)
	}
}

func TestValidateTransitionRepartitionsAfterRefresh(t *testing.T) {
	backend := healthyBackend()
	svc := NewService(backend)

	before, err := svc.Refresh(context.Background(), ViewAdmin, 0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(before.Pending) != 1 {
		t.Fatalf("expected one pending listing before validation, got %d", len(before.Pending))
	}

	// The upstream record flips to validated; only the refetch may reveal it.
	backend.mu.Lock()
	backend.pages["listings/used-cars/"] = []json.RawMessage{record(2, "2024-05-03T10:00:00Z", true, 42)}
	backend.mu.Unlock()

	stale, _ := svc.Snapshot(ViewAdmin)
	if len(stale.Pending) != 1 {
		t.Fatalf("snapshot must not change before the refresh runs")
	}

	if err := svc.AfterMutation(context.Background(), MutationValidate, 0); err != nil {
		t.Fatalf("AfterMutation: %v", err)
	}
	after, _ := svc.Snapshot(ViewAdmin)
	if len(after.Pending) != 0 || len(after.Validated) != 3 {
		t.Fatalf("expected listing moved to validated queue, got %d pending / %d validated",
			len(after.Pending), len(after.Validated))
	}
}

func TestRefreshEmptyCollections(t *testing.T) {
	backend := &fakeBackend{pages: map[string][]json.RawMessage{
		"listings/new-cars/":  {},
		"listings/used-cars/": {},
		"listings/havalehs/":  {},
	}}

	svc := NewService(backend)
	snap, err := svc.Refresh(context.Background(), ViewPublic, 0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Items) != 0 {
		t.Fatalf("expected empty feed, got %d items", len(snap.Items))
	}
	if snap.SectionErrors() != nil {
		t.Fatalf("empty collections are not an error condition: %v", snap.SectionErrors())
	}
	if snap.Version == "" {
		t.Fatalf("empty feed still carries a version tag")
	}
}

func TestAfterMutationWithoutOwnerSkipsOwnerView(t *testing.T) {
	backend := healthyBackend()
	backend.pages["listings/new-cars/?user=42"] = backend.pages["listings/new-cars/"]
	backend.pages["listings/used-cars/?user=42"] = nil
	backend.pages["listings/havalehs/?user=42"] = nil

	svc := NewService(backend)
	if _, err := svc.Refresh(context.Background(), ViewPublic, 0); err != nil {
		t.Fatalf("Refresh public: %v", err)
	}
	mine, err := svc.Refresh(context.Background(), ViewMine, 42)
	if err != nil {
		t.Fatalf("Refresh mine: %v", err)
	}
	backend.resetCalls()

	// Owner id 0 means the caller's identity is unknown; the owner view
	// must be left alone rather than refetched with user=0.
	if err := svc.AfterMutation(context.Background(), MutationUpdate, 0); err != nil {
		t.Fatalf("AfterMutation: %v", err)
	}
	if got := backend.callCount(); got != 3 {
		t.Fatalf("expected only the public pipeline re-run, got %d fetches", got)
	}
	for _, ref := range backend.calls {
		if strings.Contains(ref, "user=") {
			t.Fatalf("owner view refetched without an identity: %q", ref)
		}
	}
	if current, _ := svc.Snapshot(ViewMine); current != mine {
		t.Fatalf("owner snapshot must survive unchanged")
	}
}

func TestSnapshotVersionTracksMembership(t *testing.T) {
	backend := healthyBackend()
	svc := NewService(backend)

	first, err := svc.Refresh(context.Background(), ViewPublic, 0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	backend.mu.Lock()
	backend.pages["listings/new-cars/"] = append(
		backend.pages["listings/new-cars/"],
		record(9, "2024-05-04T10:00:00Z", true, 10))
	backend.mu.Unlock()

	second, err := svc.Refresh(context.Background(), ViewPublic, 0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if first.Version == second.Version {
		t.Fatalf("version must change when feed membership changes")
	}
}
