// Package liaisons exposes the liaison lifecycle over HTTP.
package liaisons

import (
	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/pkg/liaison"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/routes/base"

	"github.com/labstack/echo/v4"
)

// Handler serves liaison endpoints.
type Handler struct {
	manager *liaison.Manager
}

// NewHandler creates a new liaisons handler.
func NewHandler(manager *liaison.Manager) *Handler {
	return &Handler{manager: manager}
}

// Register registers liaison routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Associate)
	g.GET("", h.ListActive)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.POST("/:id/dissociate", h.Dissociate)
	g.POST("/:id/reactivate", h.Reactivate)
	g.POST("/prioritary", h.SetPrioritary)
	g.GET("/by-structure/:id", h.ListByStructure)
	g.GET("/by-person/:id", h.ListByPerson)
	g.POST("/recompute-unattached", h.RecomputeUnattached)
}

// Associate links a person to a structure.
func (h *Handler) Associate(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	var req models.CreateLiaisonRequest
	if err := c.Bind(&req); err != nil {
		return base.BadRequest("invalid request body")
	}
	req.OrganizationID = organizationID
	if req.StructureID == "" || req.PersonID == "" {
		return base.BadRequest("structureId and personId are required")
	}

	l, err := h.manager.Associate(c.Request().Context(), &req, base.UserID(c))
	if err != nil {
		return err
	}
	return base.CreatedResponse(c, l)
}

// ListActive lists active liaisons with optional filters.
func (h *Handler) ListActive(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	var filters liaisonrepo.ActiveFilters
	if v := c.QueryParam("prioritary"); v != "" {
		b := v == "true"
		filters.Prioritary = &b
	}
	if v := c.QueryParam("interested"); v != "" {
		b := v == "true"
		filters.Interested = &b
	}
	filters.Function = c.QueryParam("function")

	liaisons, err := h.manager.ActiveContacts(c.Request().Context(), organizationID, filters)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, liaisons)
}

// Stats returns liaison statistics for the organization.
func (h *Handler) Stats(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	stats, err := h.manager.Stats(c.Request().Context(), organizationID)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, stats)
}

// Get returns one liaison.
func (h *Handler) Get(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	l, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, l)
}

// Update applies a partial liaison update.
func (h *Handler) Update(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateLiaisonRequest
	if err := c.Bind(&req); err != nil {
		return base.BadRequest("invalid request body")
	}

	l, err := h.manager.Update(c.Request().Context(), id, &req, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, l)
}

// Dissociate soft-deletes a liaison.
func (h *Handler) Dissociate(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	l, err := h.manager.Dissociate(c.Request().Context(), id, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, l)
}

// Reactivate brings an inactive liaison back.
func (h *Handler) Reactivate(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	l, err := h.manager.Reactivate(c.Request().Context(), id, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, l)
}

type setPrioritaryRequest struct {
	StructureID string `json:"structureId"`
	PersonID    string `json:"personId"`
}

// SetPrioritary makes the pair's liaison the structure's prioritary contact.
func (h *Handler) SetPrioritary(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	var req setPrioritaryRequest
	if err := c.Bind(&req); err != nil {
		return base.BadRequest("invalid request body")
	}
	if req.StructureID == "" || req.PersonID == "" {
		return base.BadRequest("structureId and personId are required")
	}

	l, err := h.manager.SetPrioritary(c.Request().Context(), organizationID, req.StructureID, req.PersonID, base.UserID(c))
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, l)
}

// ListByStructure lists a structure's liaisons.
func (h *Handler) ListByStructure(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	includeInactive := c.QueryParam("include_inactive") == "true"
	liaisons, err := h.manager.ListByStructure(c.Request().Context(), id, includeInactive)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, liaisons)
}

// ListByPerson lists a person's liaisons.
func (h *Handler) ListByPerson(c echo.Context) error {
	id, err := base.RequiredParam(c, "id")
	if err != nil {
		return err
	}

	includeInactive := c.QueryParam("include_inactive") == "true"
	liaisons, err := h.manager.ListByPerson(c.Request().Context(), id, includeInactive)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, liaisons)
}

// RecomputeUnattached repairs the derived unattached flags.
func (h *Handler) RecomputeUnattached(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	fixed, err := h.manager.RecomputeUnattachedFlags(c.Request().Context(), organizationID)
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, map[string]int{"fixed": fixed})
}
