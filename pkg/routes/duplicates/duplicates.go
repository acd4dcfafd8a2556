// Package duplicates exposes duplicate detection and review over HTTP.
package duplicates

import (
	"github.com/labstack/echo/v4"

	"github.com/venuelink/rolodex/internal/repositories/archive"
	"github.com/venuelink/rolodex/pkg/detection"
	"github.com/venuelink/rolodex/pkg/review"
	"github.com/venuelink/rolodex/pkg/routes/base"
)

// Handler serves duplicate group endpoints.
type Handler struct {
	detector *detection.Detector
	reviews  *review.Service
	archives *archive.Repository
}

// NewHandler creates a new duplicates handler.
func NewHandler(detector *detection.Detector, reviews *review.Service, archives *archive.Repository) *Handler {
	return &Handler{
		detector: detector,
		reviews:  reviews,
		archives: archives,
	}
}

// Register registers duplicate routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/detect", h.Detect)
	g.GET("", h.ListPending)
	g.GET("/:id", h.Get)
	g.POST("/:id/dismiss", h.Dismiss)
	g.POST("/:id/review", h.MarkReviewed)
	g.POST("/:id/merge", h.ApproveMerge)
	g.GET("/archive", h.ListArchive)
}

// Detect runs a full detection pass over the organization's contacts.
func (h *Handler) Detect(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	stats, err := h.detector.RunFull(c.Request().Context(), organizationID, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, stats)
}

// ListPending lists the organization's pending duplicate groups.
func (h *Handler) ListPending(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	groups, err := h.reviews.ListPending(c.Request().Context(), organizationID)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, groups)
}

// Get returns one duplicate group.
func (h *Handler) Get(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	group, err := h.reviews.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, group)
}

// Dismiss marks a group as not-a-duplicate.
func (h *Handler) Dismiss(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	group, err := h.reviews.Dismiss(c.Request().Context(), id, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, group)
}

// MarkReviewed flags a group as looked at without resolving it.
func (h *Handler) MarkReviewed(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	group, err := h.reviews.MarkReviewed(c.Request().Context(), id, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, group)
}

type approveMergeRequest struct {
	CanonicalID string `json:"canonicalId"`
}

// ApproveMerge merges the group into the chosen canonical entity.
func (h *Handler) ApproveMerge(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	var req approveMergeRequest
	if err := c.Bind(&req); err != nil {
		return base.BadRequest("invalid request body")
	}
	if req.CanonicalID == "" {
		return base.BadRequest("canonicalId is required")
	}

	result, err := h.reviews.ApproveMerge(c.Request().Context(), id, req.CanonicalID, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, result)
}

// ListArchive lists merge tombstones for a canonical entity.
func (h *Handler) ListArchive(c echo.Context) error {
	canonicalID := c.QueryParam("canonical_id")
	if canonicalID == "" {
		return base.BadRequest("canonical_id query parameter is required")
	}

	records, err := h.archives.ListByCanonical(c.Request().Context(), canonicalID)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, records)
}
