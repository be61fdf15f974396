// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance), picks the durable and ephemeral backends per config, and
// wires together the auth and calendar features.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/codebyjuno/slotcal/internal/apperror"
	"github.com/codebyjuno/slotcal/internal/auth"
	"github.com/codebyjuno/slotcal/internal/calendar"
	"github.com/codebyjuno/slotcal/internal/captcha"
	"github.com/codebyjuno/slotcal/internal/config"
	"github.com/codebyjuno/slotcal/internal/ephemeral"
	"github.com/codebyjuno/slotcal/internal/middleware"
	"github.com/codebyjuno/slotcal/internal/session"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool; nil when the file backend is active.
	DB *sql.DB

	// Redis is the Redis client; nil when the memory backend is active.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	engine *calendar.Engine
	stores []interface{ Close() error }
}

// New creates a new App instance with the given dependencies, configures
// the Echo server with global middleware and error handling, and wires all
// feature services. db and rdb may be nil when the corresponding backend is
// not selected.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	// Register global middleware in order of execution.
	e.Use(middleware.Recovery())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{cfg.FrontendURL},
	}))

	// Register the custom error handler that maps AppErrors to JSON responses.
	e.HTTPErrorHandler = app.errorHandler

	// Serve the demo frontend.
	e.Static("/", cfg.PublicDir)

	if err := app.wire(); err != nil {
		return nil, err
	}

	return app, nil
}

// wire builds the ephemeral stores, repositories, services, and handlers,
// and registers all routes.
func (a *App) wire() error {
	cfg := a.Config
	wf := cfg.Workflow

	captchaStore := newStore[string](a, "captcha:")
	pendingRegStore := newStore[auth.PendingRegistration](a, "pendingreg:")
	pendingLoginStore := newStore[auth.PendingLogin](a, "pendinglogin:")
	sessionStore := newStore[session.Session](a, "session:")

	var (
		userRepo     auth.UserRepository
		calendarRepo calendar.CalendarRepository
		err          error
	)
	switch cfg.Storage {
	case config.StorageMySQL:
		userRepo = auth.NewUserRepository(a.DB)
		calendarRepo = calendar.NewCalendarRepository(a.DB)
	case config.StorageFile:
		userRepo, err = auth.NewFileUserRepository(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("creating file user repository: %w", err)
		}
		calendarRepo, err = calendar.NewFileCalendarRepository(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("creating file calendar repository: %w", err)
		}
	}

	captchaSvc := captcha.NewService(captchaStore, wf.CaptchaTTL)
	sessions := session.NewRegistry(sessionStore, wf.SessionTTL)
	authSvc := auth.NewAuthService(
		userRepo, captchaSvc, sessions,
		pendingRegStore, pendingLoginStore,
		wf.RegistrationTTL, wf.LoginTTL,
	)
	a.engine = calendar.NewEngine(calendarRepo, sessions, wf.BookingDelay)

	auth.RegisterRoutes(a.Echo, auth.NewHandler(authSvc, captchaSvc))
	calendar.RegisterRoutes(a.Echo, calendar.NewHandler(a.engine))

	// Health check endpoints: /api/ping for clients, /healthz for container
	// orchestration (includes backend connectivity).
	a.Echo.GET("/api/ping", ping)
	a.Echo.GET("/healthz", a.healthz)

	return nil
}

// newStore picks the ephemeral backend for one record type: Redis when
// configured, otherwise a swept in-memory map.
func newStore[T any](a *App, prefix string) ephemeral.Store[T] {
	var store ephemeral.Store[T]
	if a.Config.Ephemeral == config.EphemeralRedis {
		store = ephemeral.NewRedisStore[T](a.Redis, prefix)
	} else {
		store = ephemeral.NewMemoryStore[T](a.Config.Workflow.SweepInterval)
	}
	a.stores = append(a.stores, store)
	return store
}

// Start begins listening on the configured port. Blocks until shutdown.
func (a *App) Start() error {
	return a.Echo.Start(fmt.Sprintf(":%d", a.Config.Port))
}

// Close stops the reservation timers and the ephemeral store janitors.
func (a *App) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	for _, s := range a.stores {
		_ = s.Close()
	}
}

// ping is a trivial liveness probe for frontend clients.
func ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UnixMilli(),
	})
}

// healthz reports process liveness plus backend connectivity.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unreachable"})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to JSON responses and hides everything else behind a generic
// message. Internal causes are logged, never exposed.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	if writeErr := c.JSON(code, map[string]string{"error": message}); writeErr != nil {
		slog.Error("writing error response", slog.Any("error", writeErr))
	}
}
