package encounter

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinicalrecord"
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
	room := api.Group("", auth.RequireRole(auth.RoleDoctor))
	room.POST("/encounters/open", h.Open)
	room.POST("/encounters/consultations", h.Save)
	room.POST("/consultations/:id/amend", h.Amend)

	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	read.GET("/consultations/:id", h.Get)
	read.GET("/patients/:id/consultations", h.History)
}

func (h *Handler) Open(c echo.Context) error {
	var ref Ref
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ec, err := h.svc.OpenEncounter(c.Request().Context(), ref)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ec)
}

type saveRequest struct {
	Ref
	Input
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"paymentMethod"`
}

// Save reopens the encounter from its reference so the stored state, not
// the client's copy, decides what gets closed.
func (h *Handler) Save(c echo.Context) error {
	var req saveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	method, err := billing.ParseMethod(req.PaymentMethod)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	ctx := c.Request().Context()
	ec, err := h.svc.OpenEncounter(ctx, req.Ref)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	saved, err := h.svc.SaveConsultation(ctx, ec, req.Input, req.Amount, method)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) Amend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	doctorID, ok := auth.StaffIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "a staff identity is required to amend a consultation")
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.Amend(ctx, id, doctorID, in)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

type historyView struct {
	*HistoryItem
	Exam clinicalrecord.Record `json:"exam"`
}

func view(item *HistoryItem) historyView {
	return historyView{HistoryItem: item, Exam: item.Exam()}
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, view(item))
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	out := make([]historyView, 0, len(items))
	for _, item := range items {
		out = append(out, view(item))
	}
	return c.JSON(http.StatusOK, out)
}
