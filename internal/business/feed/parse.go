package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// createdAtLayouts covers the timestamp renderings the upstream API emits:
// zone-aware RFC3339 and naive local timestamps, with or without fractions.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// price accepts a number, a numeric string, or null.
type price struct {
	value *int64
}

func (p *price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		p.value = nil
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("price %q: %w", s, err)
	}
	v := int64(f)
	p.value = &v
	return nil
}

// parseListing extracts the common envelope from a raw collection record
// and tags it with its originating type. The full record rides along in
// Details so type-specific attributes pass through untouched.
func parseListing(t model.ListingType, label string, raw json.RawMessage) (model.ListingItem, error) {
	var envelope struct {
		ID          int64         `json:"id"`
		Title       string        `json:"title"`
		Price       price         `json:"price"`
		CreatedAt   string        `json:"created_at"`
		IsValidated bool          `json:"is_validated"`
		User        int64         `json:"user"`
		Images      []model.Image `json:"images"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return model.ListingItem{}, fmt.Errorf("decode %s record: %w", t, err)
	}

	createdAt, err := parseCreatedAt(envelope.CreatedAt)
	if err != nil {
		return model.ListingItem{}, fmt.Errorf("%s listing %d: %w", t, envelope.ID, err)
	}

	return model.ListingItem{
		ID:          envelope.ID,
		Type:        t,
		TypeLabel:   label,
		Title:       envelope.Title,
		Price:       envelope.Price.value,
		CreatedAt:   createdAt,
		IsValidated: envelope.IsValidated,
		OwnerID:     envelope.User,
		Images:      envelope.Images,
		Details:     append(json.RawMessage(nil), raw...),
	}, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing created_at")
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", s)
}
