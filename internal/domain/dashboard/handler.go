package dashboard

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	g.GET("/dashboard", h.Summary)
}

// Summary returns the clinic-wide summary, or a doctor's own when the caller
// is a doctor or doctor_id is given.
func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	r, err := h.svc.ParseRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return apperror.ToHTTP(err)
	}

	var scope Scope
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		scope.DoctorID = &id
	} else if !auth.HasRole(ctx, auth.RoleReceptionist) {
		if id, ok := auth.StaffIDFromContext(ctx); ok {
			scope.DoctorID = &id
		}
	}

	out, err := h.svc.Summarize(ctx, r, scope)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}
