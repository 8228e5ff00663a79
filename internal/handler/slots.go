package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// SlotHandler serves the public calendar views.
type SlotHandler struct {
	Query *service.QueryFacade
	Hours model.OperatingHoursConfig
	Now   func() time.Time
}

// NewSlotHandler returns a SlotHandler using the wall clock.
func NewSlotHandler(query *service.QueryFacade, hours model.OperatingHoursConfig) *SlotHandler {
	if query == nil {
		panic("nil query facade passed to NewSlotHandler")
	}
	return &SlotHandler{Query: query, Hours: hours, Now: time.Now}
}

// List handles GET /v1/slots?from=&to=.  Both bounds accept RFC 3339 or a
// date; a date in "to" includes that whole day.  Without parameters the
// next seven days are returned.
func (h *SlotHandler) List(c echo.Context) error {
	loc := h.Hours.Location()
	from := today(h.Now(), loc)
	if s := c.QueryParam("from"); s != "" {
		t, err := parseInstant("from", s, loc)
		if err != nil {
			return apiError(err)
		}
		from = t
	}
	to := from.AddDate(0, 0, 7)
	if s := c.QueryParam("to"); s != "" {
		t, err := parseInstant("to", s, loc)
		if err != nil {
			return apiError(err)
		}
		if len(s) == len(time.DateOnly) {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	slots, err := h.Query.ListSlots(c.Request().Context(), from, to)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

// Week handles GET /v1/calendar/week?start=YYYY-MM-DD (default today).
func (h *SlotHandler) Week(c echo.Context) error {
	loc := h.Hours.Location()
	start := today(h.Now(), loc)
	if s := c.QueryParam("start"); s != "" {
		d, err := parseDate("start", s, loc)
		if err != nil {
			return apiError(err)
		}
		start = d
	}
	days, err := h.Query.Week(c.Request().Context(), start)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"days": days})
}

// Day handles GET /v1/calendar/day/:date.
func (h *SlotHandler) Day(c echo.Context) error {
	d, err := parseDate("date", c.Param("date"), h.Hours.Location())
	if err != nil {
		return apiError(err)
	}
	day, err := h.Query.Day(c.Request().Context(), d)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, day)
}
