package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/handler"
	"github.com/iliyamo/slot-booking/internal/middleware"
	"github.com/iliyamo/slot-booking/internal/model"
)

// RegisterAdmin registers the privileged API under /v1/admin.  Every route
// requires a valid JWT whose role is admin, operator or manager.
func RegisterAdmin(e *echo.Echo, bookings *handler.BookingHandler, admin *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.PrivilegedRoles...),
	)
	g.POST("/bookings", bookings.AdminBook)
	g.DELETE("/bookings/:reference", bookings.Cancel)
	g.GET("/statistics", admin.Statistics)
	g.POST("/slots/regenerate", admin.Regenerate)
}
