// Package main is the entry point for the Slotcal server. It loads
// configuration, establishes the configured backend connections, wires the
// auth and calendar features, and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codebyjuno/slotcal/internal/app"
	"github.com/codebyjuno/slotcal/internal/config"
	"github.com/codebyjuno/slotcal/internal/database"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting Slotcal",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.Storage),
		slog.String("ephemeral", cfg.Ephemeral),
	)

	// --- Connect to MariaDB (mysql backend only) ---
	var db *sql.DB
	if cfg.Storage == config.StorageMySQL {
		db, err = database.NewMariaDB(cfg.Database)
		if err != nil {
			slog.Error("failed to connect to MariaDB", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if err := database.RunMigrations(db); err != nil {
			slog.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("connected to MariaDB")
	}

	// --- Connect to Redis (redis ephemeral backend only) ---
	var rdb *redis.Client
	if cfg.Ephemeral == config.EphemeralRedis {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to Redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to Redis")
	}

	// --- Create Application ---
	application, err := app.New(cfg, db, rdb)
	if err != nil {
		slog.Error("failed to wire application", slog.Any("error", err))
		os.Exit(1)
	}
	defer application.Close()

	// --- Graceful Shutdown ---
	// Listen for interrupt/term signals to drain connections cleanly.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil {
		// Echo returns http.ErrServerClosed on graceful shutdown, which is expected.
		slog.Info("server stopped", slog.Any("reason", err))
	}
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	slog.SetDefault(slog.New(handler))
}
