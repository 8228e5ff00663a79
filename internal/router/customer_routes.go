package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/handler"
)

// RegisterCustomer registers the hold flow and booking lookup.  None of
// these routes require a token; creating holds and confirming them go
// through limit.
func RegisterCustomer(e *echo.Echo, holds *handler.HoldHandler, bookings *handler.BookingHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.POST("/holds", holds.Reserve, limit)
	g.PATCH("/holds/:token", holds.Extend)
	g.DELETE("/holds/:token", holds.Release)
	g.POST("/holds/:token/confirm", holds.Confirm, limit)
	g.GET("/bookings/:reference", bookings.Get)
}
