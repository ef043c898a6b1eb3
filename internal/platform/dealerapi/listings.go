package dealerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// CollectionURL builds the resource locator for the first page of a listing
// collection, with optional server-side filters passed through untouched.
func (c *Client) CollectionURL(t model.ListingType, filters url.Values) string {
	ref := "listings/" + string(t) + "/"
	if len(filters) > 0 {
		ref += "?" + filters.Encode()
	}
	return ref
}

func listingRef(t model.ListingType, id int64) string {
	return "listings/" + string(t) + "/" + strconv.FormatInt(id, 10) + "/"
}

// ListPage returns one filtered page of a collection, for views that do
// their own paging.
func (c *Client) ListPage(ctx context.Context, t model.ListingType, filters url.Values) (model.Page, error) {
	return c.GetPage(ctx, c.CollectionURL(t, filters))
}

// GetListing retrieves one listing's full record, nested images included.
func (c *Client) GetListing(ctx context.Context, t model.ListingType, id int64) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, listingRef(t, id), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateListing posts a new listing and returns the created record with its
// assigned id.
func (c *Client) CreateListing(ctx context.Context, t model.ListingType, payload map[string]any) (int64, json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.postJSON(ctx, "listings/"+string(t)+"/", payload, &raw); err != nil {
		return 0, nil, err
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return 0, nil, fmt.Errorf("decode created listing: %w", err)
	}
	return created.ID, raw, nil
}

// UpdateListing partially updates a listing. When the editor is not staff,
// the edit drops the listing back into the pending queue.
func (c *Client) UpdateListing(ctx context.Context, t model.ListingType, id int64, payload map[string]any, editorIsStaff bool) (json.RawMessage, error) {
	if !editorIsStaff {
		payload["is_validated"] = false
	}
	var raw json.RawMessage
	if err := c.patchJSON(ctx, listingRef(t, id), payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeleteListing removes a listing.
func (c *Client) DeleteListing(ctx context.Context, t model.ListingType, id int64) error {
	return c.deleteJSON(ctx, listingRef(t, id))
}

// ValidateListing marks a listing as staff-approved. The transition only
// ever goes false to true; deletion is the only way back out.
func (c *Client) ValidateListing(ctx context.Context, t model.ListingType, id int64) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.patchJSON(ctx, listingRef(t, id)+"validate/", map[string]bool{"is_validated": true}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Brands fetches the complete brand list across all pages.
func (c *Client) Brands(ctx context.Context) ([]model.Brand, error) {
	return fetchAllAs[model.Brand](ctx, c, "listings/brands/")
}

// Models fetches the complete model list for one brand across all pages.
func (c *Client) Models(ctx context.Context, brandID int64) ([]model.CarModel, error) {
	ref := "listings/models/"
	if brandID != 0 {
		ref += "?brand__id=" + strconv.FormatInt(brandID, 10)
	}
	return fetchAllAs[model.CarModel](ctx, c, ref)
}

// CreateBrand adds a brand (staff only upstream).
func (c *Client) CreateBrand(ctx context.Context, name string) (model.Brand, error) {
	var brand model.Brand
	if err := c.postJSON(ctx, "listings/brands/", map[string]string{"name": name}, &brand); err != nil {
		return model.Brand{}, err
	}
	return brand, nil
}

// CreateModel adds a car model under a brand (staff only upstream).
func (c *Client) CreateModel(ctx context.Context, name string, brandID int64) (model.CarModel, error) {
	var m model.CarModel
	payload := map[string]any{"name": name, "brand": brandID}
	if err := c.postJSON(ctx, "listings/models/", payload, &m); err != nil {
		return model.CarModel{}, err
	}
	return m, nil
}

// Choices fetches the enumeration metadata. Callers fetch it once at
// startup and treat the result as immutable configuration.
func (c *Client) Choices(ctx context.Context) (*model.Choices, error) {
	var choices model.Choices
	if err := c.getJSON(ctx, "listings/choices/", &choices); err != nil {
		return nil, err
	}
	return &choices, nil
}

// ImageFile is one picture to upload.
type ImageFile struct {
	Name string
	Data []byte
}

// UploadImages attaches pictures to a listing. The upstream endpoint keys
// the attachment on (object_id, content_type) where content_type is the
// numeric tag from the choices metadata.
func (c *Client) UploadImages(ctx context.Context, choices *model.Choices, t model.ListingType, objectID int64, files []ImageFile) ([]model.Image, error) {
	if len(files) == 0 {
		return nil, nil
	}
	contentTypeID, err := choices.ContentTypeFor(t)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := writer.CreateFormFile("image", f.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, bytes.NewReader(f.Data)); err != nil {
			return nil, fmt.Errorf("write form file: %w", err)
		}
	}
	if err := writer.WriteField("object_id", strconv.FormatInt(objectID, 10)); err != nil {
		return nil, fmt.Errorf("write object_id: %w", err)
	}
	if err := writer.WriteField("content_type", strconv.FormatInt(contentTypeID, 10)); err != nil {
		return nil, fmt.Errorf("write content_type: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var uploaded []model.Image
	if err := c.do(ctx, "POST", "listings/images/", buf.Bytes(), writer.FormDataContentType(), &uploaded); err != nil {
		return nil, err
	}
	return uploaded, nil
}

// DeleteImage removes one picture from a listing.
func (c *Client) DeleteImage(ctx context.Context, imageID int64) error {
	return c.deleteJSON(ctx, "listings/images/"+strconv.FormatInt(imageID, 10)+"/")
}

// Login exchanges credentials for a token pair and installs it on the
// session, then resolves the account behind it.
func (c *Client) Login(ctx context.Context, phoneNumber, password string) (model.User, error) {
	var pair model.TokenPair
	payload := map[string]string{"phone_number": phoneNumber, "password": password}
	if err := c.postJSON(ctx, "login/", payload, &pair); err != nil {
		return model.User{}, err
	}
	if err := c.session.SetTokens(pair); err != nil {
		return model.User{}, fmt.Errorf("store session tokens: %w", err)
	}
	return c.Profile(ctx)
}

// Logout revokes the refresh token upstream and clears the session either
// way; a dead session should not survive a failed revocation call.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.session.RefreshToken()
	var revokeErr error
	if refresh != "" {
		revokeErr = c.postJSON(ctx, "logout/", map[string]string{"refresh": refresh}, nil)
	}
	if err := c.session.Clear(); err != nil {
		return err
	}
	return revokeErr
}

// Profile returns the account behind the current session.
func (c *Client) Profile(ctx context.Context) (model.User, error) {
	var user model.User
	if err := c.getJSON(ctx, "accounts/profile/", &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// fetchAllAs walks a paginated collection and decodes every result into T.
func fetchAllAs[T any](ctx context.Context, c *Client, ref string) ([]T, error) {
	raws, err := c.FetchAll(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode item from %s: %w", ref, err)
		}
		out = append(out, item)
	}
	return out, nil
}
