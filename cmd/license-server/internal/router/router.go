package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/licensegate/backend/cmd/license-server/internal/handler"
	"github.com/licensegate/backend/internal/audit"
	"github.com/licensegate/backend/internal/cache"
	"github.com/licensegate/backend/internal/config"
	"github.com/licensegate/backend/internal/metrics"
	"github.com/licensegate/backend/internal/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params 路由依赖
type Params struct {
	fx.In

	Config          *config.Config
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	LicenseHandler  *handler.LicenseHandler
	AdminHandler    *handler.AdminHandler
	LegacyHandler   *handler.LegacyHandler
	AuditMiddleware *audit.AuditMiddleware
	RateLimiter     *middleware.RateLimiter `optional:"true"`
	Redis           *cache.RedisClient      `optional:"true"`
}

const healthCheckTimeout = 2 * time.Second

// SetupRouter 按配置的路由风格挂载许可证接口
func SetupRouter(p Params) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(p.Logger.Named("http"), p.Metrics),
		middleware.NewValidator(&middleware.ValidationConfig{}).Middleware(),
	)

	// 健康检查端点
	r.GET("/health", health(p))

	activate := []gin.HandlerFunc{p.LicenseHandler.Activate}
	if p.RateLimiter != nil {
		activate = append([]gin.HandlerFunc{p.RateLimiter.Middleware()}, activate...)
	}

	style := p.Config.HTTP.RouteStyle
	if style == config.RouteStyleREST || style == config.RouteStyleBoth {
		mountREST(r, p, activate)
	}
	if style == config.RouteStyleLegacy || style == config.RouteStyleBoth {
		mountLegacy(r, p, activate)
	}

	return r
}

// health 配置了Redis时一并检查其连通性
func health(p Params) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "healthy", "store": p.Config.Store.Backend}
		if p.Redis == nil {
			c.JSON(http.StatusOK, body)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := p.Redis.Ping(ctx); err != nil {
			p.Logger.Warn("Health check failed", zap.String("component", "redis"), zap.Error(err))
			body["status"] = "unhealthy"
			body["redis"] = "down"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["redis"] = "up"
		c.JSON(http.StatusOK, body)
	}
}

func mountREST(r *gin.Engine, p Params, activate []gin.HandlerFunc) {
	audited := p.AuditMiddleware.Middleware()

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/activate - 激活许可证
		v1.POST("/activate", activate...)

		// 仅变更类操作经过审计
		admin := v1.Group("/admin")
		{
			admin.POST("/licenses", audited, p.AdminHandler.CreateLicense)
			admin.GET("/licenses", p.AdminHandler.ListLicenses)
			admin.GET("/licenses/:key", p.AdminHandler.GetLicense)
			admin.POST("/licenses/:key/extend", audited, p.AdminHandler.ExtendLicense)
			admin.POST("/licenses/:key/reset-hwid", audited, p.AdminHandler.ResetHWID)
			admin.POST("/licenses/:key/block", audited, p.AdminHandler.BlockLicense)
		}
	}
}

func mountLegacy(r *gin.Engine, p Params, activate []gin.HandlerFunc) {
	audited := p.AuditMiddleware.Middleware()

	r.POST("/activate", activate...)
	r.GET("/create/:key/:days", audited, p.LegacyHandler.Create)
	r.GET("/extend/:key/:days", audited, p.LegacyHandler.Extend)
	r.GET("/reset/:key", audited, p.LegacyHandler.Reset)
	r.GET("/block/:key", audited, p.LegacyHandler.Block)
	r.GET("/info/:key", p.LegacyHandler.Info)
	r.GET("/list", p.LegacyHandler.List)
}
