package dealerapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// FetchError is a failed page request during a paginated traversal. The
// traversal is all-or-nothing: results accumulated before the failure are
// discarded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchAll exhaustively walks a paginated collection starting at ref and
// returns every page's results concatenated in page order. The upstream
// paginator supplies the next URL (relative or absolute); a nil next ends
// the traversal.
func (c *Client) FetchAll(ctx context.Context, ref string) ([]json.RawMessage, error) {
	var results []json.RawMessage
	next := &ref
	for next != nil {
		current := *next
		var page model.Page
		if err := c.getJSON(ctx, current, &page); err != nil {
			return nil, &FetchError{URL: current, Err: err}
		}
		results = append(results, page.Results...)
		next = page.Next
	}
	return results, nil
}

// GetPage retrieves a single page without following the cursor, for views
// that page through results themselves.
func (c *Client) GetPage(ctx context.Context, ref string) (model.Page, error) {
	var page model.Page
	if err := c.getJSON(ctx, ref, &page); err != nil {
		return model.Page{}, &FetchError{URL: ref, Err: err}
	}
	return page, nil
}
