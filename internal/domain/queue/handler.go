package queue

import (
	"context"
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
	read := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor))
	read.GET("/queue", h.List)
	read.GET("/queue/next", h.PeekNext)
	read.GET("/queue/:id", h.Get)
	read.GET("/queue/:id/events", h.History)
	read.DELETE("/queue/:id", h.Remove)

	desk := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("/queue", h.Enqueue)

	room := api.Group("", auth.RequireRole(auth.RoleDoctor))
	room.POST("/queue/:id/start", h.Start)
	room.POST("/queue/:id/complete", h.Complete)
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.svc.Enqueue(c.Request().Context(), req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

// List returns one doctor's queue when doctor_id is given. Doctors without a
// filter see their own queue; everybody else sees all open entries.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	doctorID, ok, err := h.doctorParam(c)
	if err != nil {
		return err
	}
	var entries []*Entry
	if ok {
		entries, err = h.svc.List(ctx, doctorID)
	} else {
		entries, err = h.svc.ListOpen(ctx)
	}
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) PeekNext(c echo.Context) error {
	doctorID, ok, err := h.doctorParam(c)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	e, err := h.svc.PeekNext(c.Request().Context(), doctorID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if e == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Get(c echo.Context) error {
	return h.byID(c, h.svc.Get)
}

func (h *Handler) Start(c echo.Context) error {
	return h.byID(c, h.svc.StartConsultation)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.byID(c, h.svc.Complete)
}

func (h *Handler) Remove(c echo.Context) error {
	return h.byID(c, h.svc.Remove)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	out, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) byID(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Entry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := fn(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) doctorParam(c echo.Context) (uuid.UUID, bool, error) {
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, false, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		return id, true, nil
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleReceptionist) {
		if id, ok := auth.StaffIDFromContext(ctx); ok {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}
