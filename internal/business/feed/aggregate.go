package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// Fetcher walks one paginated collection to completion.
type Fetcher interface {
	FetchAll(ctx context.Context, ref string) ([]json.RawMessage, error)
}

// CollectionSpec names one typed collection to aggregate: the type tag and
// display label stamped on every record, and the first-page locator.
type CollectionSpec struct {
	Type  model.ListingType
	URL   string
	Label string
}

// CollectionError is a failed collection fetch under the isolated policy.
type CollectionError struct {
	Type model.ListingType
	Err  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection %s: %v", e.Type, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// fanOut fetches and tags every spec concurrently, waiting for all of them
// before returning. Buckets and errors are positional, so output order is
// the spec order regardless of completion order. onError, when non-nil,
// fires as soon as any collection fails, letting a fail-fast caller cancel
// the siblings' context.
func fanOut(ctx context.Context, f Fetcher, specs []CollectionSpec, onError func()) ([][]model.ListingItem, []error) {
	buckets := make([][]model.ListingItem, len(specs))
	errs := make([]error, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec CollectionSpec) {
			defer wg.Done()
			raws, err := f.FetchAll(ctx, spec.URL)
			if err != nil {
				errs[i] = err
				if onError != nil {
					onError()
				}
				return
			}
			items := make([]model.ListingItem, 0, len(raws))
			for _, raw := range raws {
				item, err := parseListing(spec.Type, spec.Label, raw)
				if err != nil {
					errs[i] = err
					if onError != nil {
						onError()
					}
					return
				}
				items = append(items, item)
			}
			buckets[i] = items
		}(i, spec)
	}
	wg.Wait()

	return buckets, errs
}

// Aggregate fetches every spec'd collection concurrently, tags each record
// with its spec's type and label, and concatenates the results in spec
// order. All-or-nothing: if any collection fails, no partial output is
// produced and in-flight siblings are cancelled.
func Aggregate(ctx context.Context, f Fetcher, specs []CollectionSpec) ([]model.ListingItem, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	buckets, errs := fanOut(ctx, f, specs, cancel)

	// Report the collection that actually failed, not a sibling that only
	// saw the cancellation.
	var first *CollectionError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, &CollectionError{Type: specs[i].Type, Err: err}
		}
		if first == nil {
			first = &CollectionError{Type: specs[i].Type, Err: err}
		}
	}
	if first != nil {
		return nil, first
	}

	var merged []model.ListingItem
	for _, bucket := range buckets {
		merged = append(merged, bucket...)
	}
	return merged, nil
}

// AggregateIsolated is the per-collection-isolated variant: a failed
// collection is reported alongside whatever the others returned, so a
// half-broken upstream still renders a partial feed.
func AggregateIsolated(ctx context.Context, f Fetcher, specs []CollectionSpec) ([]model.ListingItem, []*CollectionError) {
	buckets, errs := fanOut(ctx, f, specs, nil)

	var merged []model.ListingItem
	var failures []*CollectionError
	for i, bucket := range buckets {
		if errs[i] != nil {
			failures = append(failures, &CollectionError{Type: specs[i].Type, Err: errs[i]})
			continue
		}
		merged = append(merged, bucket...)
	}
	return merged, failures
}
