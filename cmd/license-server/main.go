package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/licensegate/backend/cmd/license-server/internal/handler"
	"github.com/licensegate/backend/cmd/license-server/internal/router"
	"github.com/licensegate/backend/cmd/license-server/internal/tasks"
	"github.com/licensegate/backend/internal/audit"
	"github.com/licensegate/backend/internal/cache"
	"github.com/licensegate/backend/internal/clock"
	"github.com/licensegate/backend/internal/config"
	"github.com/licensegate/backend/internal/database"
	"github.com/licensegate/backend/internal/logger"
	"github.com/licensegate/backend/internal/metrics"
	"github.com/licensegate/backend/internal/middleware"
	"github.com/licensegate/backend/internal/repository"
	"github.com/licensegate/backend/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.HTTP.GinMode)

	app := fx.New(
		fx.Supply(cfg),

		// 基础模块
		fx.Provide(
			logger.NewLogger,
			clock.NewSystem,
			metrics.NewRegistry,
			metrics.NewMetrics,
		),

		// 存储模块
		storeModule(cfg),

		// 服务层
		fx.Provide(
			service.NewLicenseService,
			func(s *service.LicenseService) handler.LicenseService { return s },
		),

		// 处理器层
		fx.Provide(
			handler.NewLicenseHandler,
			handler.NewAdminHandler,
			handler.NewLegacyHandler,
			audit.NewAuditMiddleware,
		),

		rateLimitModule(cfg),

		// HTTP路由器
		fx.Provide(router.SetupRouter),

		fx.Invoke(runHTTPServer),
		fx.Invoke(runMetricsServer),
		workerModule(cfg),
	)

	app.Run()
}

// storeModule 按配置选择许可证存储后端
func storeModule(cfg *config.Config) fx.Option {
	var options []fx.Option
	if cfg.NeedsRedis() {
		options = append(options, fx.Provide(cache.NewRedisClient))
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		options = append(options, fx.Provide(
			database.NewPostgresDB,
			func(db *gorm.DB, m *metrics.Metrics) repository.LicenseRepository {
				return repository.NewInstrumentedLicenseRepository(repository.NewLicenseRepository(db), config.BackendPostgres, m)
			},
		))
	case config.BackendRedis:
		options = append(options, fx.Provide(
			func(rc *cache.RedisClient, m *metrics.Metrics) repository.LicenseRepository {
				repo := repository.NewRedisLicenseRepository(rc.Client(), rc.Prefix(), cfg.Store.RedisMaxRetries)
				return repository.NewInstrumentedLicenseRepository(repo, config.BackendRedis, m)
			},
		))
	default:
		options = append(options, fx.Provide(
			func(m *metrics.Metrics) repository.LicenseRepository {
				return repository.NewInstrumentedLicenseRepository(repository.NewMemoryLicenseRepository(), config.BackendMemory, m)
			},
		))
	}

	return fx.Options(options...)
}

// rateLimitModule 启用时为激活接口提供按IP限流
func rateLimitModule(cfg *config.Config) fx.Option {
	if !cfg.RateLimit.Enabled {
		return fx.Options()
	}
	return fx.Provide(func(rc *cache.RedisClient, log *zap.Logger) *middleware.RateLimiter {
		return middleware.NewRateLimiter(rc, "activate", int64(cfg.RateLimit.ActivatePerIPMin), log)
	})
}

// workerModule 启用时注册到期检查任务
func workerModule(cfg *config.Config) fx.Option {
	if !cfg.Worker.Enabled {
		return fx.Options()
	}
	return fx.Options(
		fx.Provide(
			func(repo repository.LicenseRepository) tasks.LicenseLister { return repo },
			tasks.NewExpiryReportTask,
		),
		fx.Invoke(runExpiryWorker),
	)
}

// runHTTPServer 启动HTTP服务器
func runHTTPServer(
	lifecycle fx.Lifecycle,
	log *zap.Logger,
	cfg *config.Config,
	router *gin.Engine,
) {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting license server",
				zap.String("addr", server.Addr),
				zap.String("store_backend", cfg.Store.Backend),
				zap.String("route_style", cfg.HTTP.RouteStyle),
			)

			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("Failed to start HTTP server", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down license server")

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Failed to gracefully shutdown server", zap.Error(err))
				return err
			}

			log.Info("License server stopped")
			return nil
		},
	})
}

// runMetricsServer 在独立端口暴露 /metrics
func runMetricsServer(
	lifecycle fx.Lifecycle,
	log *zap.Logger,
	cfg *config.Config,
	reg *prometheus.Registry,
) {
	if !cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// runExpiryWorker 按计划执行到期检查
func runExpiryWorker(
	lifecycle fx.Lifecycle,
	log *zap.Logger,
	cfg *config.Config,
	task *tasks.ExpiryReportTask,
) error {
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()

	if _, err := c.AddFunc(cfg.Worker.ExpirySchedule, func() {
		if _, err := task.Run(ctx); err != nil {
			log.Error("Expiry report task failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid expiry schedule %q: %w", cfg.Worker.ExpirySchedule, err)
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Info("Expiry worker started", zap.String("schedule", cfg.Worker.ExpirySchedule))
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info("Shutting down expiry worker")
			cancel()
			<-c.Stop().Done()
			return nil
		},
	})
	return nil
}
