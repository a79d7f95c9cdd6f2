package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPSDECK_DATABASE_URL", "postgres://localhost/opsdeck")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 1024, cfg.Cache.MaxOrganizations)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, "authz:invalidate", cfg.Redis.InvalidationChannel)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("OPSDECK_DATABASE_URL", "file::memory:?cache=shared")
	t.Setenv("OPSDECK_DATABASE_DRIVER", "sqlite3")
	t.Setenv("OPSDECK_PORT", "9000")
	t.Setenv("OPSDECK_REDIS_URL", "localhost:6379")
	t.Setenv("OPSDECK_CACHE_MAX_ORGS", "64")
	t.Setenv("OPSDECK_LOG_LEVEL", "debug")
	t.Setenv("OPSDECK_RATELIMIT_WINDOW", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 64, cfg.Cache.MaxOrganizations)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.WindowDuration)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("OPSDECK_DATABASE_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_InvalidDriver(t *testing.T) {
	t.Setenv("OPSDECK_DATABASE_URL", "postgres://localhost/opsdeck")
	t.Setenv("OPSDECK_DATABASE_DRIVER", "mysql")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate_AuditRetention(t *testing.T) {
	t.Setenv("OPSDECK_DATABASE_URL", "postgres://localhost/opsdeck")
	t.Setenv("OPSDECK_AUDIT_RETENTION_DAYS", "0")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate_CacheSize(t *testing.T) {
	t.Setenv("OPSDECK_DATABASE_URL", "postgres://localhost/opsdeck")
	t.Setenv("OPSDECK_CACHE_MAX_ORGS", "-1")

	_, err := LoadConfig()
	assert.Error(t, err)
}
