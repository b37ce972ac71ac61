package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/licensegate/backend/internal/config"
	"github.com/licensegate/backend/internal/logger"
	"github.com/licensegate/backend/internal/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Logging.Format = "console"

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// DATABASE_URL 优先，其次使用 DB_* 配置
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = cfg.Database.DSN()
		log.Info("DATABASE_URL not set, using DB_* settings",
			zap.String("host", cfg.Database.Host),
			zap.String("dbname", cfg.Database.DBName),
		)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	migrator, err := migrations.NewMigrator(db)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	command := os.Args[1]
	switch command {
	case "up":
		log.Info("Running migrations up...")
		if err := migrator.Up(); err != nil {
			log.Fatal("Failed to migrate up", zap.Error(err))
		}
		log.Info("Migrations completed successfully")

	case "down":
		log.Info("Rolling back all migrations...")
		if err := migrator.Down(); err != nil {
			log.Fatal("Failed to migrate down", zap.Error(err))
		}
		log.Info("Rollback completed successfully")

	case "steps":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(1)
		}
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal("Steps must be an integer", zap.String("value", os.Args[2]))
		}
		if err := migrator.Steps(n); err != nil {
			log.Fatal("Failed to apply migration steps", zap.Int("steps", n), zap.Error(err))
		}
		log.Info("Migration steps applied", zap.Int("steps", n))

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			log.Fatal("Failed to get version", zap.Error(err))
		}
		log.Info("Current schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up        - Run all pending migrations")
	fmt.Println("  down      - Rollback all migrations")
	fmt.Println("  steps N   - Apply N migrations (negative N rolls back)")
	fmt.Println("  version   - Print current migration version")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL - PostgreSQL connection string (optional)")
	fmt.Println("  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE - used when DATABASE_URL is unset")
}
