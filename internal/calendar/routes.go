package calendar

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all calendar routes on the given Echo instance.
// Reads are public; reserve authenticates via the session token carried in
// the request body, so no route-level middleware is needed.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/calendar", h.Calendar)
	e.GET("/api/calendar/status", h.Status)
	e.POST("/api/calendar/reserve", h.Reserve)
}
