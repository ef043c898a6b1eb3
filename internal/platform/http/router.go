package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Amahseyn/car-dealer-gateway/internal/business/feed"
	"github.com/Amahseyn/car-dealer-gateway/internal/platform/dealerapi"
	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// emptyFeedMessage mirrors the notice the upstream site shows when no
// listings exist.
const emptyFeedMessage = "در حال حاضر آگهی برای نمایش وجود ندارد."

// Router wires HTTP handlers.
type Router struct {
	client  *dealerapi.Client
	feed    *feed.Service
	choices *model.Choices
	origins string
}

func NewRouter(client *dealerapi.Client, feedSvc *feed.Service, choices *model.Choices, allowedOrigins string) *gin.Engine {
	r := &Router{
		client:  client,
		feed:    feedSvc,
		choices: choices,
		origins: allowedOrigins,
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), r.corsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/feed", r.getFeed)
		api.GET("/choices", r.getChoices)
		api.GET("/listings/:type", r.listCollection)
		api.GET("/listings/:type/:id", r.getListing)

		api.POST("/auth/login", r.login)
		api.POST("/auth/logout", r.logout)

		authed := api.Group("", r.requireSession())
		{
			authed.POST("/listings/:type", r.createListing)
			authed.PATCH("/listings/:type/:id", r.updateListing)
			authed.DELETE("/listings/:type/:id", r.deleteListing)
			authed.PATCH("/listings/:type/:id/validate", r.validateListing)
			authed.POST("/listings/:type/:id/images", r.uploadImages)
			authed.DELETE("/images/:id", r.deleteImage)

			authed.GET("/my-ads", r.myAds)
			authed.GET("/admin/queue", r.adminQueue)
			authed.GET("/admin/brands", r.listBrands)
			authed.POST("/admin/brands", r.createBrand)
			authed.GET("/admin/models", r.listModels)
			authed.POST("/admin/models", r.createModel)
		}
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	origins := strings.Split(r.origins, ",")
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if t := strings.TrimSpace(o); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		for _, o := range trimmed {
			if o == "*" || o == origin {
				allowed = origin
				break
			}
		}
		c.Header("Access-Control-Allow-Origin", allowed)
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *Router) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.client.Session().LoggedIn() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// fail maps client errors onto gateway status codes. Upstream API statuses
// pass through; transport failures surface as bad gateway.
func fail(c *gin.Context, err error) {
	var apiErr *dealerapi.APIError
	switch {
	case errors.Is(err, dealerapi.ErrSessionExpired), errors.Is(err, dealerapi.ErrNotLoggedIn):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Body})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// refreshView runs the pipeline for a view and resolves the stale-run
// race: when a newer concurrent run won and already installed its snapshot,
// that snapshot is served; when the winner is still in flight there is
// nothing to serve yet and the caller gets a retryable 503.
func (r *Router) refreshView(c *gin.Context, view feed.View, ownerID int64) (*feed.Snapshot, bool) {
	snap, err := r.feed.Refresh(c.Request.Context(), view, ownerID)
	if errors.Is(err, feed.ErrStaleRun) {
		winner, ok := r.feed.Snapshot(view)
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed refresh in progress"})
			return nil, false
		}
		return winner, true
	}
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return snap, true
}

func (r *Router) getFeed(c *gin.Context) {
	snap, ok := r.refreshView(c, feed.ViewPublic, 0)
	if !ok {
		return
	}

	body := gin.H{
		"ads":        snap.Items,
		"version":    snap.Version,
		"fetched_at": snap.FetchedAt,
	}
	if errs := snap.SectionErrors(); errs != nil {
		body["errors"] = errs
	}
	if len(snap.Items) == 0 && len(snap.Errors) == 0 {
		body["message"] = emptyFeedMessage
	}
	c.JSON(http.StatusOK, body)
}

func (r *Router) getChoices(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", r.choices.Raw)
}

func (r *Router) listingType(c *gin.Context) (model.ListingType, bool) {
	t, err := model.ParseListingType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return t, true
}

func (r *Router) listingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return 0, false
	}
	return id, true
}

// listCollection serves one filtered page of a single collection; query
// parameters are forwarded to the upstream untouched.
func (r *Router) listCollection(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	page, err := r.client.ListPage(c.Request.Context(), t, c.Request.URL.Query())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (r *Router) getListing(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	id, ok := r.listingID(c)
	if !ok {
		return
	}
	raw, err := r.client.GetListing(c.Request.Context(), t, id)
	if err != nil {
		fail(c, err)
		return
	}
	item, err := feed.TagDetail(t, raw)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (r *Router) createListing(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	var payload map[string]any
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	id, raw, err := r.client.CreateListing(c.Request.Context(), t, payload)
	if err != nil {
		fail(c, err)
		return
	}
	r.refreshAfter(c, feed.MutationCreate)
	c.JSON(http.StatusCreated, gin.H{"id": id, "ad": raw})
}

func (r *Router) updateListing(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	id, ok := r.listingID(c)
	if !ok {
		return
	}
	var payload map[string]any
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	user, err := r.client.Profile(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	raw, err := r.client.UpdateListing(c.Request.Context(), t, id, payload, user.IsStaff)
	if err != nil {
		fail(c, err)
		return
	}
	r.refreshAfter(c, feed.MutationUpdate)
	c.JSON(http.StatusOK, gin.H{"ad": raw})
}

func (r *Router) deleteListing(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	id, ok := r.listingID(c)
	if !ok {
		return
	}
	if err := r.client.DeleteListing(c.Request.Context(), t, id); err != nil {
		fail(c, err)
		return
	}
	r.refreshAfter(c, feed.MutationDelete)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (r *Router) validateListing(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	id, ok := r.listingID(c)
	if !ok {
		return
	}
	raw, err := r.client.ValidateListing(c.Request.Context(), t, id)
	if err != nil {
		fail(c, err)
		return
	}
	r.refreshAfter(c, feed.MutationValidate)
	c.JSON(http.StatusOK, gin.H{"ad": raw})
}

func (r *Router) uploadImages(c *gin.Context) {
	t, ok := r.listingType(c)
	if !ok {
		return
	}
	id, ok := r.listingID(c)
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart body"})
		return
	}
	var files []dealerapi.ImageFile
	for _, header := range form.File["image"] {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload " + header.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload " + header.Filename})
			return
		}
		files = append(files, dealerapi.ImageFile{Name: header.Filename, Data: data})
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image files in request"})
		return
	}

	uploaded, err := r.client.UploadImages(c.Request.Context(), r.choices, t, id, files)
	if err != nil {
		fail(c, err)
		return
	}
	r.refreshAfter(c, feed.MutationUpdate)
	c.JSON(http.StatusCreated, gin.H{"images": uploaded})
}

func (r *Router) deleteImage(c *gin.Context) {
	id, ok := r.listingID(c)
	if !ok {
		return
	}
	if err := r.client.DeleteImage(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	r.refreshAfter(c, feed.MutationUpdate)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// refreshAfter runs the post-mutation refresh contract. A refresh failure
// is logged into the response as a warning but never undoes the mutation,
// which already succeeded upstream.
func (r *Router) refreshAfter(c *gin.Context, m feed.Mutation) {
	ownerID, err := r.client.Session().UserID()
	if err != nil {
		// Without an identity the owner view cannot be refreshed correctly;
		// AfterMutation skips it for owner id 0.
		ownerID = 0
		c.Header("X-Refresh-Warning", "owner view not refreshed: "+err.Error())
	}
	if err := r.feed.AfterMutation(c.Request.Context(), m, ownerID); err != nil {
		c.Header("X-Refresh-Warning", err.Error())
	}
}

func (r *Router) myAds(c *gin.Context) {
	ownerID, err := r.client.Session().UserID()
	if err != nil {
		fail(c, err)
		return
	}
	snap, ok := r.refreshView(c, feed.ViewMine, ownerID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ads":        snap.Items,
		"version":    snap.Version,
		"fetched_at": snap.FetchedAt,
	})
}

func (r *Router) adminQueue(c *gin.Context) {
	snap, ok := r.refreshView(c, feed.ViewAdmin, 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":    snap.Pending,
		"validated":  snap.Validated,
		"version":    snap.Version,
		"fetched_at": snap.FetchedAt,
	})
}

func (r *Router) listBrands(c *gin.Context) {
	brands, err := r.client.Brands(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brands": brands})
}

func (r *Router) createBrand(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	brand, err := r.client.CreateBrand(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, brand)
}

func (r *Router) listModels(c *gin.Context) {
	var brandID int64
	if v := c.Query("brand"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid brand id"})
			return
		}
		brandID = parsed
	}
	models, err := r.client.Models(c.Request.Context(), brandID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (r *Router) createModel(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Brand int64  `json:"brand"`
	}
	if err := c.BindJSON(&req); err != nil || req.Name == "" || req.Brand == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and brand are required"})
		return
	}
	m, err := r.client.CreateModel(c.Request.Context(), req.Name, req.Brand)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (r *Router) login(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Password    string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil || req.PhoneNumber == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone_number and password are required"})
		return
	}
	user, err := r.client.Login(c.Request.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (r *Router) logout(c *gin.Context) {
	if err := r.client.Logout(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}
