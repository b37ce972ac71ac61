package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/licensegate/backend/internal/cache"
	"go.uber.org/zap"
)

// RateLimiter 按客户端IP限制某一端点的请求速率
type RateLimiter struct {
	redisClient *cache.RedisClient
	endpoint    string
	limit       int64
	logger      *zap.Logger
}

// NewRateLimiter 创建速率限制中间件
func NewRateLimiter(redisClient *cache.RedisClient, endpoint string, limit int64, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		endpoint:    endpoint,
		limit:       limit,
		logger:      log,
	}
}

// Middleware 速率限制中间件处理函数
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		key := fmt.Sprintf("endpoint:%s:ip:%s", r.endpoint, clientIP)

		res, err := r.redisClient.IncrementRateLimit(c.Request.Context(), key, r.limit)
		switch {
		case errors.Is(err, cache.ErrRateLimitExceeded):
			r.reject(c, res.ResetIn)
			return
		case err != nil:
			// Redis不可用时放行
			r.logger.Warn("Rate limiter unavailable", zap.String("endpoint", r.endpoint), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", r.limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", r.limit-res.Count))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(res.ResetIn).Unix()))
		c.Next()
	}
}

func (r *RateLimiter) reject(c *gin.Context, resetIn time.Duration) {
	retryAfter := int64(math.Ceil(resetIn.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", r.limit))
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(resetIn).Unix()))
	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))

	r.logger.Warn("Rate limit exceeded",
		zap.String("endpoint", r.endpoint),
		zap.String("client_ip", c.ClientIP()),
		zap.Int64("limit", r.limit),
	)

	abortWithError(c, http.StatusTooManyRequests, "rate_limited",
		fmt.Sprintf("Rate limit exceeded for %s. Limit: %d requests per minute.", r.endpoint, r.limit))
}
