// Package imports exposes bulk contact import over HTTP.
package imports

import (
	"github.com/labstack/echo/v4"

	"github.com/venuelink/rolodex/pkg/importer"
	"github.com/venuelink/rolodex/pkg/routes/base"
)

// Handler serves import endpoints.
type Handler struct {
	service *importer.Service
}

// NewHandler creates a new imports handler.
func NewHandler(service *importer.Service) *Handler {
	return &Handler{service: service}
}

// Register registers import routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.BulkImport)
}

type bulkImportRequest struct {
	Rows   []importer.Row `json:"rows"`
	DryRun bool           `json:"dryRun"`
}

// BulkImport ingests contact rows. Row failures are reported in the result,
// not as an HTTP error.
func (h *Handler) BulkImport(c echo.Context) error {
	organizationID, err := base.OrganizationID(c)
	if err != nil {
		return err
	}

	var req bulkImportRequest
	if err := c.Bind(&req); err != nil {
		return base.BadRequest("invalid request body")
	}
	if len(req.Rows) == 0 {
		return base.BadRequest("rows is required")
	}

	result, err := h.service.BulkImport(c.Request().Context(), organizationID, req.Rows, base.UserID(c), importer.Options{
		DryRun: req.DryRun,
	})
	if err != nil {
		return err
	}
	return base.SuccessResponse(c, result)
}
