package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/licensegate/backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, Wrap(client, "lg:")
}

func TestIncrementRateLimit(t *testing.T) {
	mr, rc := newTestClient(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := rc.IncrementRateLimit(ctx, "10.0.0.1", 3)
		require.NoError(t, err)
		assert.Equal(t, i, res.Count)
		assert.Equal(t, TTLRateLimit, res.ResetIn)
	}

	res, err := rc.IncrementRateLimit(ctx, "10.0.0.1", 3)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, int64(4), res.Count)

	assert.Equal(t, TTLRateLimit, mr.TTL("lg:ratelimit:10.0.0.1"))

	other, err := rc.IncrementRateLimit(ctx, "10.0.0.2", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Count)
}

func TestRateLimitWindowExpires(t *testing.T) {
	mr, rc := newTestClient(t)
	ctx := context.Background()

	_, err := rc.IncrementRateLimit(ctx, "ip", 1)
	require.NoError(t, err)
	_, err = rc.IncrementRateLimit(ctx, "ip", 1)
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	mr.FastForward(TTLRateLimit)

	res, err := rc.IncrementRateLimit(ctx, "ip", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
}

func TestRateLimitWindowIsFixed(t *testing.T) {
	mr, rc := newTestClient(t)
	ctx := context.Background()

	_, err := rc.IncrementRateLimit(ctx, "ip", 2)
	require.NoError(t, err)

	// 后续计数不延长窗口
	mr.FastForward(40 * time.Second)
	res, err := rc.IncrementRateLimit(ctx, "ip", 2)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, res.ResetIn)

	mr.FastForward(15 * time.Second)
	res, err = rc.IncrementRateLimit(ctx, "ip", 2)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 5*time.Second, res.ResetIn)

	mr.FastForward(5 * time.Second)
	res, err = rc.IncrementRateLimit(ctx, "ip", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
	assert.Equal(t, TTLRateLimit, res.ResetIn)
}

func TestRateLimitRepairsMissingExpiry(t *testing.T) {
	mr, rc := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("lg:ratelimit:stuck", "7"))

	res, err := rc.IncrementRateLimit(ctx, "stuck", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Count)
	assert.Equal(t, TTLRateLimit, mr.TTL("lg:ratelimit:stuck"))
}

func TestNewConnectsAndPings(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rc, err := New(&config.RedisConfig{Host: mr.Host(), Port: port, KeyPrefix: "x:"})
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "x:", rc.Prefix())
	assert.NoError(t, rc.Ping(context.Background()))
}
