package logger

import (
	"context"

	"github.com/licensegate/backend/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "licensegate"

// NewLogger 创建日志器（Fx兼容），停止时刷新缓冲
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := New(&cfg.Logging)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// 标准输出不支持fsync，忽略刷新错误
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

// New 按配置构建zap日志器
// json 格式使用生产配置（带采样），其余使用开发配置
func New(cfg *config.LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "ts"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if cfg.OutputPath != "" && cfg.OutputPath != "stdout" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}
	zapConfig.InitialFields = map[string]interface{}{"service": serviceName}

	log, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return log.Named(serviceName), nil
}

// ForLicense 绑定许可证密钥的子日志器
func ForLicense(log *zap.Logger, key string) *zap.Logger {
	return log.With(LicenseKey(key))
}

// ForActivation 绑定许可证密钥与硬件指纹的子日志器
func ForActivation(log *zap.Logger, key, hwid string) *zap.Logger {
	return log.With(LicenseKey(key), HWID(hwid))
}
