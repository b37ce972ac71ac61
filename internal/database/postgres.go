package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/licensegate/backend/internal/config"
	"github.com/licensegate/backend/internal/migrations"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const poolMonitorInterval = 30 * time.Second

// NewPostgresDB 创建数据库连接（Fx兼容）
func NewPostgresDB(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go monitorConnectionPool(monitorCtx, sqlDB, log)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			log.Info("Closing database connection")
			return Close(db)
		},
	})

	return db, nil
}

// New 创建数据库连接
func New(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 50
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = maxOpenConns / 2
	}

	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	log.Info("Database connection pool configured",
		zap.Int("max_open", maxOpenConns),
		zap.Int("max_idle", maxIdleConns),
		zap.Duration("max_lifetime", connMaxLifetime),
	)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		log.Info("Running database migrations...")
		version, err := migrations.MigrateUp(sqlDB)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("Database migrations completed", zap.Uint("version", version))
	}

	return db, nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// monitorConnectionPool 定期记录连接池状态
func monitorConnectionPool(ctx context.Context, sqlDB *sql.DB, log *zap.Logger) {
	ticker := time.NewTicker(poolMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := sqlDB.Stats()
		log.Debug("Connection pool stats",
			zap.Int("open", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("idle", stats.Idle),
			zap.Int64("wait_count", stats.WaitCount),
			zap.Duration("wait_duration", stats.WaitDuration),
		)

		if stats.Idle == 0 && stats.InUse > 0 {
			log.Warn("No idle connections available", zap.Int("in_use", stats.InUse))
		}

		if stats.OpenConnections > 0 && float64(stats.InUse)/float64(stats.OpenConnections) > 0.9 {
			log.Warn("Connection pool nearly saturated",
				zap.Int("in_use", stats.InUse),
				zap.Int("open", stats.OpenConnections),
			)
		}
	}
}
