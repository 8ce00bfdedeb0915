// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Restore  RestoreConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request, body included (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, restores are long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds the non-restore routes (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the restore target: postgres or sqlite (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLiteDSN is the database/sql DSN for the sqlite driver (default: file:classifieds.db)
	SQLiteDSN string `env:"SQLITE_DSN" default:"file:classifieds.db"`

	// SQLiteInitSchema creates the marketplace tables on startup if missing (default: true)
	SQLiteInitSchema bool `env:"SQLITE_INIT_SCHEMA" default:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RestoreConfig holds backup restore settings.
type RestoreConfig struct {
	// BatchSize is the largest number of records per insert call (default: 100)
	BatchSize int `env:"RESTORE_BATCH_SIZE" default:"100"`

	// Timeout is how long a request waits for its run; the run itself keeps going (default: 10m)
	Timeout time.Duration `env:"RESTORE_TIMEOUT" default:"10m"`

	// MaxBodySize is the largest accepted backup document in bytes (default: 256MB)
	MaxBodySize int64 `env:"RESTORE_MAX_BODY_SIZE" default:"268435456"`

	// CheckpointDir holds resume checkpoints; empty uses the OS temp dir
	CheckpointDir string `env:"RESTORE_CHECKPOINT_DIR"`

	// CheckpointsEnabled turns resume support on (default: true)
	CheckpointsEnabled bool `env:"RESTORE_CHECKPOINTS" default:"true"`

	// LockWait is how long a run waits for a busy lock (default: 5s)
	LockWait time.Duration `env:"RESTORE_LOCK_WAIT" default:"5s"`

	// Environment names the target for the concurrency guard (default: default)
	Environment string `env:"RESTORE_ENVIRONMENT" default:"default"`

	// DanglingRefs is the dangling reference policy: keep, reject, nullify (default: keep)
	DanglingRefs string `env:"RESTORE_DANGLING_REFS" default:"keep"`

	// SkipDuplicates ignores rows whose key already exists instead of failing the batch
	SkipDuplicates bool `env:"RESTORE_SKIP_DUPLICATES" default:"false"`

	// HistoryLimit caps GET /api/admin/restore/runs (default: 50)
	HistoryLimit int `env:"RESTORE_HISTORY_LIMIT" default:"50"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RestoreLimit is requests per minute for restore endpoints (default: 5)
	RestoreLimit int `env:"RATE_LIMIT_RESTORE" default:"5"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects requests without a valid X-API-Key (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// APIKeys is a comma-separated list of key:role pairs, e.g. "k1:admin,k2:viewer".
	// A key without a role is a viewer.
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
