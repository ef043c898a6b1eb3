package util

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// ListingKey renders the composite identity key of a listing. Ids are only
// unique within one collection, so the type slug is part of the key.
func ListingKey(t model.ListingType, id int64) string {
	return string(t) + "-" + strconv.FormatInt(id, 10)
}

// FeedVersion hashes the ordered identity keys of a feed into a short
// version tag, used for change detection on view snapshots.
func FeedVersion(items []model.ListingItem) string {
	builder := strings.Builder{}
	for _, it := range items {
		builder.WriteString(ListingKey(it.Type, it.ID))
		builder.WriteString("|")
	}
	sum := md5.Sum([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}
