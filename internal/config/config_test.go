package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, RouteStyleREST, cfg.HTTP.RouteStyle)
	assert.Equal(t, 64, cfg.Store.RedisMaxRetries)
	assert.Equal(t, "licensegate:", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.License.RejectEmptyHWID)
	assert.False(t, cfg.NeedsRedis())
	assert.Equal(t, 72*time.Hour, cfg.Worker.WarningWindow)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("HTTP_ROUTE_STYLE", "both")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LICENSE_REJECT_EMPTY_HWID", "true")
	t.Setenv("WORKER_EXPIRY_WARNING_WINDOW", "24h")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, RouteStyleBoth, cfg.HTTP.RouteStyle)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.License.RejectEmptyHWID)
	assert.Equal(t, 24*time.Hour, cfg.Worker.WarningWindow)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.True(t, cfg.NeedsRedis())
}

func TestMalformedValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("METRICS_ENABLED", "maybe")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "etcd")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrUnknownBackend)
	})

	t.Run("unknown route style", func(t *testing.T) {
		t.Setenv("HTTP_ROUTE_STYLE", "grpc")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrUnknownRouteStyle)
	})

	t.Run("rate limit needs a positive limit", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_ENABLED", "true")
		t.Setenv("RATE_LIMIT_ACTIVATE_PER_IP", "0")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "n", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=require", c.DSN())
}
