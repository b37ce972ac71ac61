package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/licensegate/backend/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// 缓存键前缀（拼接在全局前缀之后）
const (
	// 速率限制计数器（TTL: 1分钟）
	KeyRateLimit = "ratelimit:"
)

// 速率限制窗口
const TTLRateLimit = 1 * time.Minute

// ErrRateLimitExceeded 超过速率限制
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RedisClient Redis客户端包装
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient 创建Redis客户端（Fx兼容）
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*RedisClient, error) {
	rc, err := New(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("Closing redis connection")
			return rc.Close()
		},
	})

	log.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr()), zap.Int("db", cfg.Redis.DB))
	return rc, nil
}

// New 创建Redis客户端
func New(cfg *config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client, prefix: cfg.KeyPrefix}, nil
}

// Wrap 用已有连接构造客户端
func Wrap(client *redis.Client, prefix string) *RedisClient {
	return &RedisClient{client: client, prefix: prefix}
}

// Close 关闭连接
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Client 获取原始Redis客户端（用于高级操作）
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Prefix 全局键前缀
func (r *RedisClient) Prefix() string {
	return r.prefix
}

// Ping 检查连接可用性
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// 固定窗口计数：仅在窗口首次计数时设置过期时间
var rateLimitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RateLimitResult 一次计数后的窗口状态
type RateLimitResult struct {
	Count   int64
	ResetIn time.Duration
}

// IncrementRateLimit 在当前窗口内增加计数
// 窗口从首次计数开始，TTLRateLimit 后整体重置；超过限制时返回 ErrRateLimitExceeded
func (r *RedisClient) IncrementRateLimit(ctx context.Context, identifier string, limit int64) (RateLimitResult, error) {
	key := r.prefix + KeyRateLimit + identifier

	vals, err := rateLimitScript.Run(ctx, r.client, []string{key}, TTLRateLimit.Milliseconds()).Int64Slice()
	if err != nil {
		return RateLimitResult{}, err
	}
	if len(vals) != 2 {
		return RateLimitResult{}, fmt.Errorf("unexpected rate limit reply: %v", vals)
	}

	res := RateLimitResult{Count: vals[0], ResetIn: time.Duration(vals[1]) * time.Millisecond}
	if res.Count > limit {
		return res, fmt.Errorf("%w: %d/%d", ErrRateLimitExceeded, res.Count, limit)
	}
	return res, nil
}
