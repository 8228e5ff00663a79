// Package handler exposes the booking engine over HTTP.  Handlers bind and
// validate the request, call one service operation and map its outcome
// to a status code in apiError.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/service"
	"github.com/iliyamo/slot-booking/internal/validate"
)

// RequestValidator plugs go-playground/validator into echo.Validator.
type RequestValidator struct{}

// Validate implements echo.Validator.
func (RequestValidator) Validate(i interface{}) error { return validate.Struct(i) }

// bind decodes and validates the request body into v.  Failures are
// reported as service.ErrInvalidRequest.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		return fmt.Errorf("%w: %s", service.ErrInvalidRequest, msg)
	}
	if err := c.Validate(v); err != nil {
		return fmt.Errorf("%w: %s", service.ErrInvalidRequest, err)
	}
	return nil
}

// apiError maps an engine error to an HTTP error whose body is
// {"error": message}.  The original error is kept as Internal so the
// request logger records it.
func apiError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status, body := http.StatusInternalServerError, echo.Map{"error": "internal server error"}

	var unavailable *service.SlotUnavailableError
	switch {
	case errors.As(err, &unavailable):
		status = http.StatusConflict
		body = echo.Map{"error": service.ErrSlotUnavailable.Error(), "unavailable": unavailable.SlotIDs}
	case errors.Is(err, service.ErrSlotUnavailable):
		status, body["error"] = http.StatusConflict, service.ErrSlotUnavailable.Error()
	case errors.Is(err, service.ErrHoldExpired):
		status, body["error"] = http.StatusGone, service.ErrHoldExpired.Error()
	case errors.Is(err, service.ErrCrossDateBooking):
		status, body["error"] = http.StatusUnprocessableEntity, service.ErrCrossDateBooking.Error()
	case errors.Is(err, service.ErrReferenceGenerationFailed):
		body["error"] = service.ErrReferenceGenerationFailed.Error()
	case errors.Is(err, service.ErrPersistenceUnavailable):
		status, body["error"] = http.StatusServiceUnavailable, "the booking system is temporarily unavailable, please try again"
	case errors.Is(err, service.ErrUnauthorized):
		status, body["error"] = http.StatusForbidden, service.ErrUnauthorized.Error()
	case errors.Is(err, service.ErrInvalidRequest):
		status, body["error"] = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrBookingNotFound):
		status, body["error"] = http.StatusNotFound, service.ErrBookingNotFound.Error()
	}
	return echo.NewHTTPError(status, body).SetInternal(err)
}

// parseDate parses a YYYY-MM-DD calendar date in loc.
func parseDate(name, s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", service.ErrInvalidRequest, name)
	}
	return d, nil
}

// parseInstant accepts an RFC 3339 timestamp or a calendar date, which
// stands for local midnight in loc.
func parseInstant(name, s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", service.ErrInvalidRequest, name)
}

// today is the current calendar date in loc.
func today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
