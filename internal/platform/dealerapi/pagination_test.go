package dealerapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// pagedTransport serves canned page bodies keyed by full request URL.
type pagedTransport struct {
	pages map[string]string
	calls []string
}

func (p *pagedTransport) Do(req *http.Request) (*http.Response, error) {
	u := req.URL.String()
	p.calls = append(p.calls, u)
	body, ok := p.pages[u]
	if !ok {
		return jsonResponse(http.StatusInternalServerError, `{"detail":"boom"}`), nil
	}
	return jsonResponse(http.StatusOK, body), nil
}

func TestFetchAllWalksEveryPage(t *testing.T) {
	// The paginator mixes absolute and relative next URLs.
	rt := &pagedTransport{pages: map[string]string{
		"http://api.test/api/listings/new-cars/": `{
			"count": 4,
			"next": "http://api.test/api/listings/new-cars/?page=2",
			"results": [{"id":1},{"id":2}]
		}`,
		"http://api.test/api/listings/new-cars/?page=2": `{
			"count": 4,
			"next": "listings/new-cars/?page=3",
			"results": [{"id":3}]
		}`,
		"http://api.test/api/listings/new-cars/?page=3": `{
			"count": 4,
			"next": null,
			"results": [{"id":4}]
		}`,
	}}

	c := newTestClient(t, rt, model.TokenPair{})
	results, err := c.FetchAll(context.Background(), "listings/new-cars/")
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results across 3 pages, got %d", len(results))
	}
	for i, raw := range results {
		want := byte('1' + i)
		if got := raw[len(`{"id":`)]; got != want {
			t.Errorf("result %d out of page order: %s", i, raw)
		}
	}
	if len(rt.calls) != 3 {
		t.Fatalf("expected 3 page requests, got %d: %v", len(rt.calls), rt.calls)
	}
}

func TestFetchAllEmptyCollection(t *testing.T) {
	rt := &pagedTransport{pages: map[string]string{
		"http://api.test/api/listings/havalehs/": `{"count":0,"next":null,"results":[]}`,
	}}

	c := newTestClient(t, rt, model.TokenPair{})
	results, err := c.FetchAll(context.Background(), "listings/havalehs/")
	if err != nil {
		t.Fatalf("FetchAll empty: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestFetchAllDiscardsPartialResultsOnFailure(t *testing.T) {
	// Page 2 is missing from the map and answers 500.
	rt := &pagedTransport{pages: map[string]string{
		"http://api.test/api/listings/used-cars/": `{
			"count": 3,
			"next": "http://api.test/api/listings/used-cars/?page=2",
			"results": [{"id":1},{"id":2}]
		}`,
	}}

	c := newTestClient(t, rt, model.TokenPair{})
	results, err := c.FetchAll(context.Background(), "listings/used-cars/")
	if results != nil {
		t.Fatalf("expected no partial results, got %d", len(results))
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.URL != "http://api.test/api/listings/used-cars/?page=2" {
		t.Fatalf("expected failing page URL in error, got %q", fetchErr.URL)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected wrapped 500 APIError, got %v", err)
	}
}

func TestGetPageSinglePage(t *testing.T) {
	rt := &pagedTransport{pages: map[string]string{
		"http://api.test/api/listings/new-cars/?page=2": `{
			"count": 10,
			"next": "http://api.test/api/listings/new-cars/?page=3",
			"previous": "http://api.test/api/listings/new-cars/",
			"results": [{"id":5}]
		}`,
	}}

	c := newTestClient(t, rt, model.TokenPair{})
	page, err := c.GetPage(context.Background(), "listings/new-cars/?page=2")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page.Count != 10 || len(page.Results) != 1 {
		t.Fatalf("unexpected page: count=%d results=%d", page.Count, len(page.Results))
	}
	if page.Next == nil {
		t.Fatalf("expected next cursor, got nil")
	}
	if len(rt.calls) != 1 {
		t.Fatalf("GetPage must not follow the cursor, made %d requests", len(rt.calls))
	}
}
