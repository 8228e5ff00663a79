package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// AdminHandler serves reporting and calendar maintenance.  Routes are
// guarded by JWTAuth and RequireRole.
type AdminHandler struct {
	Query     *service.QueryFacade
	Generator *service.SlotGenerator
	Hours     model.OperatingHoursConfig
}

// NewAdminHandler returns an AdminHandler.
func NewAdminHandler(query *service.QueryFacade, gen *service.SlotGenerator, hours model.OperatingHoursConfig) *AdminHandler {
	if query == nil || gen == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Query: query, Generator: gen, Hours: hours}
}

type dateRangeRequest struct {
	From string `json:"from" query:"from" validate:"required"`
	To   string `json:"to" query:"to" validate:"required"`
}

// Statistics handles GET /v1/admin/statistics?from=&to= (inclusive dates).
func (h *AdminHandler) Statistics(c echo.Context) error {
	var req dateRangeRequest
	if err := bind(c, &req); err != nil {
		return apiError(err)
	}
	from, to, err := h.dates(req)
	if err != nil {
		return apiError(err)
	}
	stats, err := h.Query.Statistics(c.Request().Context(), from, to)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Regenerate handles POST /v1/admin/slots/regenerate with {"from","to"}.
func (h *AdminHandler) Regenerate(c echo.Context) error {
	var req dateRangeRequest
	if err := bind(c, &req); err != nil {
		return apiError(err)
	}
	from, to, err := h.dates(req)
	if err != nil {
		return apiError(err)
	}
	res, err := h.Generator.Regenerate(c.Request().Context(), from, to)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) dates(req dateRangeRequest) (from, to time.Time, err error) {
	loc := h.Hours.Location()
	if from, err = parseDate("from", req.From, loc); err != nil {
		return
	}
	to, err = parseDate("to", req.To, loc)
	return
}
