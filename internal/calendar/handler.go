package calendar

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/codebyjuno/slotcal/internal/apperror"
)

// Handler handles HTTP requests for the reservation calendar.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new calendar handler over the given engine.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Calendar returns the slot set, generating it on first access
// (GET /api/calendar).
func (h *Handler) Calendar(c echo.Context) error {
	months, err := h.engine.Months(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"months": months})
}

// Status returns the current slot set snapshot with no side effects
// (GET /api/calendar/status).
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"months": h.engine.Status()})
}

// reserveRequest holds the fields of a reserve call.
type reserveRequest struct {
	Token  string `json:"token"`
	DateID string `json:"dateId"`
}

// Reserve attempts to reserve a slot (POST /api/calendar/reserve).
func (h *Handler) Reserve(c echo.Context) error {
	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}
	if req.Token == "" || req.DateID == "" {
		return apperror.NewValidation("missing token/dateId")
	}

	if err := h.engine.Reserve(c.Request().Context(), req.Token, req.DateID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Date reserved and will be booked in ~5 seconds",
	})
}
