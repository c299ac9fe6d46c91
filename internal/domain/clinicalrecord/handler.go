package clinicalrecord

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Handler exposes the exam schemas so forms can be built from them.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	g.GET("/exam-schemas", h.ListSchemas)
}

func (h *Handler) ListSchemas(c echo.Context) error {
	return c.JSON(http.StatusOK, Schema())
}
