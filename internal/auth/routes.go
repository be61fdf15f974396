package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codebyjuno/slotcal/internal/middleware"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// All auth routes are public -- the workflows themselves gate progress via
// captcha, pending records, and security answers.
//
// POST endpoints are rate-limited to slow down brute-force and credential
// stuffing attacks.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/questions", h.Questions)
	e.GET("/api/captcha", h.Captcha)

	e.POST("/api/register-stage1", h.RegisterStage1, middleware.RateLimit(5, time.Minute))
	e.POST("/api/register-stage2", h.RegisterStage2, middleware.RateLimit(10, time.Minute))
	e.POST("/api/login-step1", h.LoginStep1, middleware.RateLimit(10, time.Minute))
	e.POST("/api/login-step2", h.LoginStep2, middleware.RateLimit(10, time.Minute))

	e.POST("/api/logout", h.Logout)
}
