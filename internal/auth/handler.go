package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/codebyjuno/slotcal/internal/apperror"
	"github.com/codebyjuno/slotcal/internal/captcha"
)

// Handler handles HTTP requests for the auth workflows. Handlers are thin:
// they bind the request, call the service, and shape the JSON response. No
// business logic lives here.
type Handler struct {
	service AuthService
	captcha *captcha.Service
}

// NewHandler creates a new auth handler with the given dependencies.
func NewHandler(service AuthService, captchaSvc *captcha.Service) *Handler {
	return &Handler{service: service, captcha: captchaSvc}
}

// Questions returns the fixed security question list (GET /api/questions).
func (h *Handler) Questions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"questions": Questions})
}

// Captcha issues a fresh challenge (GET /api/captcha).
func (h *Handler) Captcha(c echo.Context) error {
	challenge, err := h.captcha.New(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, challenge)
}

// RegisterStage1 starts a registration (POST /api/register-stage1).
func (h *Handler) RegisterStage1(c echo.Context) error {
	var req RegisterStage1Request
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	registrationID, err := h.service.RegisterStage1(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"registrationId": registrationID})
}

// RegisterStage2 completes a registration (POST /api/register-stage2).
func (h *Handler) RegisterStage2(c echo.Context) error {
	var req RegisterStage2Request
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	if err := h.service.RegisterStage2(c.Request().Context(), req); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// LoginStep1 starts a login (POST /api/login-step1).
func (h *Handler) LoginStep1(c echo.Context) error {
	var req LoginStep1Request
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	loginID, questions, err := h.service.LoginStep1(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"loginId":   loginID,
		"questions": questions,
	})
}

// LoginStep2 completes a login (POST /api/login-step2).
func (h *Handler) LoginStep2(c echo.Context) error {
	var req LoginStep2Request
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	token, user, err := h.service.LoginStep2(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// Logout revokes a session token (POST /api/logout). Always succeeds, even
// for unknown tokens.
func (h *Handler) Logout(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	if err := h.service.Logout(c.Request().Context(), req.Token); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
