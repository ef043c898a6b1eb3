package feed

import (
	"sort"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// Order returns the items sorted by creation time, newest first. The sort
// is stable: records with identical timestamps keep their aggregation
// order, which is itself deterministic (spec order, page order within a
// collection). The input slice is not touched.
func Order(items []model.ListingItem) []model.ListingItem {
	out := make([]model.ListingItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
