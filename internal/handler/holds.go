package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/service"
)

// HoldHandler drives the customer flow: hold slots, optionally extend or
// release the hold, then confirm it into a booking.  Holds are anonymous;
// the token returned by Reserve is the only credential.
type HoldHandler struct {
	Reservations *service.ReservationService
}

// NewHoldHandler returns a HoldHandler.
func NewHoldHandler(reservations *service.ReservationService) *HoldHandler {
	if reservations == nil {
		panic("nil reservation service passed to NewHoldHandler")
	}
	return &HoldHandler{Reservations: reservations}
}

type reserveRequest struct {
	SlotIDs    []string `json:"slot_ids" validate:"required,min=1,max=48,dive,required"`
	TTLSeconds int      `json:"ttl_seconds" validate:"omitempty,min=1"`
}

type extendRequest struct {
	TTLSeconds int `json:"ttl_seconds" validate:"omitempty,min=1"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Reserve handles POST /v1/holds.  It returns 201 with the hold, or 409
// listing the slots that could not be claimed.
func (h *HoldHandler) Reserve(c echo.Context) error {
	var req reserveRequest
	if err := bind(c, &req); err != nil {
		return apiError(err)
	}
	hold, err := h.Reservations.Reserve(c.Request().Context(), req.SlotIDs, seconds(req.TTLSeconds))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, hold)
}

// Extend handles PATCH /v1/holds/:token.
func (h *HoldHandler) Extend(c echo.Context) error {
	var req extendRequest
	if err := bind(c, &req); err != nil {
		return apiError(err)
	}
	hold, err := h.Reservations.Extend(c.Request().Context(), c.Param("token"), seconds(req.TTLSeconds))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, hold)
}

// Release handles DELETE /v1/holds/:token.  Releasing an unknown or
// already released hold is not an error.
func (h *HoldHandler) Release(c echo.Context) error {
	if err := h.Reservations.Release(c.Request().Context(), c.Param("token")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Confirm handles POST /v1/holds/:token/confirm with the customer details
// as body and returns 201 with the booking.
func (h *HoldHandler) Confirm(c echo.Context) error {
	var details model.CustomerDetails
	if err := bind(c, &details); err != nil {
		return apiError(err)
	}
	b, err := h.Reservations.ConfirmBooking(c.Request().Context(), c.Param("token"), details)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, b)
}
