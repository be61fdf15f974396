// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Storage backend names accepted by the STORAGE env var.
const (
	StorageMySQL = "mysql"
	StorageFile  = "file"
)

// Ephemeral backend names accepted by the EPHEMERAL_BACKEND env var.
const (
	EphemeralRedis  = "redis"
	EphemeralMemory = "memory"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 3030).
	Port int

	// FrontendURL is the origin allowed to call the API cross-origin.
	FrontendURL string

	// PublicDir is the directory of static frontend assets (default: "public").
	PublicDir string

	// Storage selects the durable backend: "mysql" or "file".
	Storage string

	// DataDir is where the file backend keeps its JSON documents.
	DataDir string

	// Database holds MariaDB connection settings (Storage == "mysql").
	Database DatabaseConfig

	// Ephemeral selects the short-lived record backend: "redis" or "memory".
	Ephemeral string

	// Redis holds Redis connection settings (Ephemeral == "redis").
	Redis RedisConfig

	// Workflow holds the TTLs and delays of the auth and reservation flows.
	Workflow WorkflowConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "slotcal").
	User string

	// Password is the MariaDB password (default: "slotcal").
	Password string

	// Name is the database name (default: "slotcal").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// WorkflowConfig holds the timing knobs of the auth and reservation
// workflows. Defaults match the reference policies; they are configurable
// mainly so tests and staging can shorten them.
type WorkflowConfig struct {
	// CaptchaTTL is how long a captcha challenge stays solvable.
	CaptchaTTL time.Duration

	// RegistrationTTL is how long a stage-1 registration waits for stage 2.
	RegistrationTTL time.Duration

	// LoginTTL is how long a step-1 login waits for step 2.
	LoginTTL time.Duration

	// SessionTTL is how long a session token lives. Zero means sessions
	// never expire and are removed only by explicit logout.
	SessionTTL time.Duration

	// BookingDelay is how long a reserved slot waits before auto-booking.
	BookingDelay time.Duration

	// SweepInterval is how often the in-memory ephemeral stores sweep
	// expired entries.
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if the backend selectors hold unknown values.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnvInt("PORT", 3030),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		PublicDir:   getEnv("PUBLIC_DIR", "public"),
		Storage:     strings.ToLower(getEnv("STORAGE", StorageFile)),
		DataDir:     getEnv("DATA_DIR", "./data"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "slotcal"),
			Password:        getEnv("DB_PASSWORD", "slotcal"),
			Name:            getEnv("DB_NAME", "slotcal"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Ephemeral: strings.ToLower(getEnv("EPHEMERAL_BACKEND", EphemeralMemory)),

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Workflow: WorkflowConfig{
			CaptchaTTL:      getEnvDuration("CAPTCHA_TTL", time.Minute),
			RegistrationTTL: getEnvDuration("REGISTRATION_TTL", 15*time.Minute),
			LoginTTL:        getEnvDuration("LOGIN_TTL", 5*time.Minute),
			SessionTTL:      getEnvDuration("SESSION_TTL", 0),
			BookingDelay:    getEnvDuration("BOOKING_DELAY", 5*time.Second),
			SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		},
	}

	switch cfg.Storage {
	case StorageMySQL, StorageFile:
	default:
		return nil, fmt.Errorf("unknown STORAGE backend %q (want %q or %q)",
			cfg.Storage, StorageMySQL, StorageFile)
	}

	switch cfg.Ephemeral {
	case EphemeralRedis, EphemeralMemory:
	default:
		return nil, fmt.Errorf("unknown EPHEMERAL_BACKEND %q (want %q or %q)",
			cfg.Ephemeral, EphemeralRedis, EphemeralMemory)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "15m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
