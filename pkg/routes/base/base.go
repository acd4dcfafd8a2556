// Package base holds the helpers shared by every route package.
package base

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/venuelink/rolodex/pkg/appctx"
)

// OrganizationID extracts the organization ID from the request context.
func OrganizationID(c echo.Context) (string, error) {
	organizationID := appctx.GetOrganizationID(c.Request().Context())
	if organizationID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return organizationID, nil
}

// UserID extracts the acting user ID from the request context. It may be
// empty for unauthenticated calls.
func UserID(c echo.Context) string {
	return appctx.GetUserID(c.Request().Context())
}

// RequiredParam returns the named path parameter or a 400.
func RequiredParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+name)
	}
	return value, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
