package feed

import "github.com/Amahseyn/car-dealer-gateway/pkg/model"

// Predicate selects items for the matching half of a partition.
type Predicate func(model.ListingItem) bool

// Partition splits an ordered feed into the items matching pred and the
// rest. Relative order is preserved in both halves, so interleaving them
// back reconstructs the input exactly.
func Partition(items []model.ListingItem, pred Predicate) (matching, rest []model.ListingItem) {
	for _, it := range items {
		if pred(it) {
			matching = append(matching, it)
		} else {
			rest = append(rest, it)
		}
	}
	return matching, rest
}

// ByValidation selects staff-approved listings; the rest is the pending
// moderation queue.
func ByValidation() Predicate {
	return func(it model.ListingItem) bool { return it.IsValidated }
}

// ByOwner selects the listings belonging to one user. The owner view
// normally filters server-side via query parameter; this predicate exists
// for consumers that already hold a mixed feed.
func ByOwner(ownerID int64) Predicate {
	return func(it model.ListingItem) bool { return it.OwnerID == ownerID }
}
