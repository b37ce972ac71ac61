package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// 存储后端
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// 路由风格
const (
	RouteStyleREST   = "rest"
	RouteStyleLegacy = "legacy"
	RouteStyleBoth   = "both"
)

var (
	// ErrUnknownBackend 不支持的存储后端
	ErrUnknownBackend = errors.New("unknown store backend")
	// ErrUnknownRouteStyle 不支持的路由风格
	ErrUnknownRouteStyle = errors.New("unknown route style")
)

// Config 应用配置
type Config struct {
	Server    ServerConfig
	HTTP      HTTPConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	License   LicenseConfig
	Worker    WorkerConfig
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HTTPConfig 路由配置
type HTTPConfig struct {
	RouteStyle string // "rest", "legacy" or "both"
	GinMode    string
}

// StoreConfig 许可证存储配置
type StoreConfig struct {
	Backend         string
	RedisMaxRetries int // WATCH冲突时的最大重试次数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string
	Format     string // "json" or "console"
	OutputPath string
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// RateLimitConfig 激活接口限流配置
type RateLimitConfig struct {
	Enabled          bool
	ActivatePerIPMin int // 每个IP每分钟允许的激活请求数
}

// LicenseConfig 许可证行为配置
type LicenseConfig struct {
	RejectEmptyHWID bool
}

// WorkerConfig 后台任务配置
type WorkerConfig struct {
	Enabled        bool
	ExpirySchedule string
	WarningWindow  time.Duration
}

// LoadConfig 从环境变量加载配置（Fx兼容）
func LoadConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		HTTP: HTTPConfig{
			RouteStyle: getEnv("HTTP_ROUTE_STYLE", RouteStyleREST),
			GinMode:    getEnv("GIN_MODE", "release"),
		},
		Store: StoreConfig{
			Backend:         getEnv("STORE_BACKEND", BackendMemory),
			RedisMaxRetries: getEnvAsInt("STORE_REDIS_MAX_RETRIES", 64),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "licensegate"),
			Password:        getEnv("DB_PASSWORD", "licensegate_dev_password"),
			DBName:          getEnv("DB_NAME", "licensegate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnvAsInt("REDIS_PORT", 6379),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			PoolSize:  getEnvAsInt("REDIS_POOL_SIZE", 10),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "licensegate:"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Port:    getEnvAsInt("METRICS_PORT", 9090),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getEnvAsBool("RATE_LIMIT_ENABLED", false),
			ActivatePerIPMin: getEnvAsInt("RATE_LIMIT_ACTIVATE_PER_IP", 60),
		},
		License: LicenseConfig{
			RejectEmptyHWID: getEnvAsBool("LICENSE_REJECT_EMPTY_HWID", false),
		},
		Worker: WorkerConfig{
			Enabled:        getEnvAsBool("WORKER_ENABLED", true),
			ExpirySchedule: getEnv("WORKER_EXPIRY_SCHEDULE", "@every 5m"),
			WarningWindow:  getEnvAsDuration("WORKER_EXPIRY_WARNING_WINDOW", 72*time.Hour),
		},
	}, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}

	switch c.HTTP.RouteStyle {
	case RouteStyleREST, RouteStyleLegacy, RouteStyleBoth:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRouteStyle, c.HTTP.RouteStyle)
	}

	switch c.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown gin mode %q", c.HTTP.GinMode)
	}

	if c.RateLimit.Enabled && c.RateLimit.ActivatePerIPMin <= 0 {
		return fmt.Errorf("rate limit enabled with non-positive limit %d", c.RateLimit.ActivatePerIPMin)
	}
	return nil
}

// NeedsRedis 判断当前配置是否需要Redis连接
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == BackendRedis || c.RateLimit.Enabled
}

// DSN 生成PostgreSQL连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr 生成Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
