package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ListingType identifies the upstream collection a listing came from.
// The values are the collection slugs used in API paths.
type ListingType string

const (
	TypeNewCar  ListingType = "new-cars"
	TypeUsedCar ListingType = "used-cars"
	TypeHavaleh ListingType = "havalehs"
)

// AllListingTypes lists the three listing collections in their canonical order.
var AllListingTypes = []ListingType{TypeNewCar, TypeUsedCar, TypeHavaleh}

// typeLabels maps each listing type to its display label.
var typeLabels = map[ListingType]string{
	TypeNewCar:  "خودروی صفر",
	TypeUsedCar: "خودروی کارکرده",
	TypeHavaleh: "حواله",
}

// contentTypeKeys maps collection slugs to the keys used by the
// advertisement_types block of the choices metadata.
var contentTypeKeys = map[ListingType]string{
	TypeNewCar:  "new_car",
	TypeUsedCar: "used_car",
	TypeHavaleh: "havaleh",
}

// Label returns the human-readable display name for the type.
func (t ListingType) Label() string {
	return typeLabels[t]
}

// Valid reports whether t is one of the known collection slugs.
func (t ListingType) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// ParseListingType validates a collection slug coming from a URL path.
func ParseListingType(s string) (ListingType, error) {
	t := ListingType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown listing type %q", s)
	}
	return t, nil
}

// Image is one picture attached to a listing. Slice order is display
// order; index 0 is the thumbnail.
type Image struct {
	ID  int64  `json:"id"`
	URL string `json:"image"`
}

// ListingItem is the common envelope around one advertisement. Type and
// TypeLabel are assigned by the aggregator, never by the upstream API.
// Details carries the full raw record, including the type-specific
// attributes the aggregation core passes through untouched.
type ListingItem struct {
	ID          int64
	Type        ListingType
	TypeLabel   string
	Title       string
	Price       *int64
	CreatedAt   time.Time
	IsValidated bool
	OwnerID     int64
	Images      []Image
	Details     json.RawMessage
}

// MarshalJSON renders the raw upstream record with the aggregator's type
// tags spliced in, mirroring how the envelope was composed.
func (it ListingItem) MarshalJSON() ([]byte, error) {
	flat := map[string]json.RawMessage{}
	if len(it.Details) > 0 {
		if err := json.Unmarshal(it.Details, &flat); err != nil {
			return nil, fmt.Errorf("flatten listing %d: %w", it.ID, err)
		}
	}
	typeTag, _ := json.Marshal(it.Type)
	labelTag, _ := json.Marshal(it.TypeLabel)
	flat["car_type"] = typeTag
	flat["ad_type_name"] = labelTag
	return json.Marshal(flat)
}

// Page is one page of a cursor-paginated collection. Next is nil on the
// final page.
type Page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// Brand is an admin-managed car brand.
type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CarModel is an admin-managed car model belonging to a brand.
type CarModel struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Brand int64  `json:"brand"`
}

// User is the authenticated account behind the current session.
type User struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsStaff     bool   `json:"is_staff"`
}

// TokenPair is the access/refresh credential pair issued at login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Choices is the server-supplied enumeration metadata, fetched once at
// startup and treated as immutable afterwards. Raw keeps the full document
// for passthrough; AdvertisementTypes carries the numeric content-type tags
// required by image uploads.
type Choices struct {
	Raw                json.RawMessage
	AdvertisementTypes map[string]int64
}

// UnmarshalJSON keeps the original document alongside the parsed
// advertisement_types block.
func (c *Choices) UnmarshalJSON(data []byte) error {
	var envelope struct {
		AdvertisementTypes map[string]int64 `json:"advertisement_types"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	c.Raw = append(json.RawMessage(nil), data...)
	c.AdvertisementTypes = envelope.AdvertisementTypes
	return nil
}

// ContentTypeFor resolves the numeric content-type tag for a listing type,
// as required by the image upload endpoint.
func (c *Choices) ContentTypeFor(t ListingType) (int64, error) {
	key, ok := contentTypeKeys[t]
	if !ok {
		return 0, fmt.Errorf("no content type key for listing type %q", t)
	}
	id, ok := c.AdvertisementTypes[key]
	if !ok {
		return 0, fmt.Errorf("choices metadata has no advertisement type %q", key)
	}
	return id, nil
}
