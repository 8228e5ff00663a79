// Package router registers the HTTP routes on an Echo instance.  Routes
// are split by audience: public calendar reads, the anonymous customer
// hold flow and the privileged admin API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/handler"
)

// RegisterRoutes registers the health check and the public calendar.
// cache wraps the calendar reads.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, h *handler.SlotHandler, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health(db))

	g := e.Group("/v1", cache)
	g.GET("/slots", h.List)
	g.GET("/calendar/week", h.Week)
	g.GET("/calendar/day/:date", h.Day)
}
