package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (cache invalidation fan-out, distributed rate limits)
	Redis RedisConfig

	// Decision cache configuration
	Cache CacheConfig

	// Audit trail configuration
	Audit AuditConfig

	// Rate limit configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds SQL database configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3"
	Driver string
	// URL is the connection string (DSN for sqlite3)
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional; when URL
// is empty invalidation stays process-local and distributed rate
// limiting is disabled.
type RedisConfig struct {
	URL                 string
	Password            string
	DB                  int
	InvalidationChannel string
}

// Enabled reports whether Redis is configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// CacheConfig holds decision cache configuration
type CacheConfig struct {
	Enabled bool
	// MaxOrganizations bounds the per-organization LRU
	MaxOrganizations int
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	Enabled       bool
	RetentionDays int
	// SweepSchedule is a cron expression for the retention sweep
	SweepSchedule string
}

// RateLimitConfig holds API rate limit configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("OPSDECK_HOST", "0.0.0.0"),
			Port:            getEnv("OPSDECK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("OPSDECK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("OPSDECK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("OPSDECK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("OPSDECK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("OPSDECK_DATABASE_DRIVER", "postgres"),
			URL:          getEnv("OPSDECK_DATABASE_URL", ""),
			MaxOpenConns: getEnvInt("OPSDECK_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("OPSDECK_DATABASE_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvDuration("OPSDECK_DATABASE_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:                 getEnv("OPSDECK_REDIS_URL", ""),
			Password:            getEnv("OPSDECK_REDIS_PASSWORD", ""),
			DB:                  getEnvInt("OPSDECK_REDIS_DB", 0),
			InvalidationChannel: getEnv("OPSDECK_REDIS_INVALIDATION_CHANNEL", "authz:invalidate"),
		},
		Cache: CacheConfig{
			Enabled:          getEnvBool("OPSDECK_CACHE_ENABLED", true),
			MaxOrganizations: getEnvInt("OPSDECK_CACHE_MAX_ORGS", 1024),
		},
		Audit: AuditConfig{
			Enabled:       getEnvBool("OPSDECK_AUDIT_ENABLED", true),
			RetentionDays: getEnvInt("OPSDECK_AUDIT_RETENTION_DAYS", 90),
			SweepSchedule: getEnv("OPSDECK_AUDIT_SWEEP_SCHEDULE", "0 3 * * *"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("OPSDECK_RATELIMIT_ENABLED", true),
			RequestsPerWindow: getEnvInt("OPSDECK_RATELIMIT_REQUESTS", 100),
			WindowDuration:    getEnvDuration("OPSDECK_RATELIMIT_WINDOW", time.Minute),
			BurstSize:         getEnvInt("OPSDECK_RATELIMIT_BURST", 10),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("OPSDECK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("OPSDECK_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Cache.Enabled && c.Cache.MaxOrganizations <= 0 {
		return fmt.Errorf("cache max organizations must be positive")
	}

	if c.Audit.Enabled {
		if c.Audit.RetentionDays <= 0 {
			return fmt.Errorf("audit retention days must be positive")
		}
		if c.Audit.SweepSchedule == "" {
			return fmt.Errorf("audit sweep schedule is required when audit is enabled")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit requests per window must be positive")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
