package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/middleware"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// BookingHandler serves booking lookup and the privileged booking flows.
type BookingHandler struct {
	Query        *service.QueryFacade
	Reservations *service.ReservationService
}

// NewBookingHandler returns a BookingHandler.
func NewBookingHandler(query *service.QueryFacade, reservations *service.ReservationService) *BookingHandler {
	if query == nil || reservations == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Query: query, Reservations: reservations}
}

// adminBookRequest carries the customer details inline next to the slot
// selection.
type adminBookRequest struct {
	SlotIDs []string `json:"slot_ids" validate:"required,min=1,max=48,dive,required"`
	// Override takes over slots held by a customer when the server allows it.
	Override bool `json:"override"`
	model.CustomerDetails
}

// Get handles GET /v1/bookings/:reference.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.Query.GetBooking(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, b)
}

// AdminBook handles POST /v1/admin/bookings.
func (h *BookingHandler) AdminBook(c echo.Context) error {
	var req adminBookRequest
	if err := bind(c, &req); err != nil {
		return apiError(err)
	}
	b, err := h.Reservations.AdminBook(c.Request().Context(), middleware.CallerFrom(c), req.SlotIDs, req.CustomerDetails, req.Override)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Cancel handles DELETE /v1/admin/bookings/:reference.  It returns the
// cancelled booking; cancelling twice is not an error.
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, err := h.Reservations.CancelBooking(c.Request().Context(), middleware.CallerFrom(c), c.Param("reference"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, b)
}
