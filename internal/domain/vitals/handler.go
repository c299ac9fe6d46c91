package vitals

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
	g := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor))
	g.POST("/patients/:id/vitals", h.Record)
	g.GET("/patients/:id/vitals/latest", h.Latest)
	g.GET("/patients/:id/vitals", h.History)
}

func (h *Handler) Record(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var m Measurements
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var recordedBy *uuid.UUID
	if id, ok := auth.StaffIDFromContext(c.Request().Context()); ok {
		recordedBy = &id
	}
	v, err := h.svc.Record(c.Request().Context(), patientID, m, recordedBy)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Latest(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	v, err := h.svc.Latest(c.Request().Context(), patientID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if v == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.svc.History(c.Request().Context(), patientID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if items == nil {
		items = []*VitalsRecord{}
	}
	return c.JSON(http.StatusOK, items)
}
