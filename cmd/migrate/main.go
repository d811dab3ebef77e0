package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"lending-loop-lab/internal/config"
	"lending-loop-lab/internal/storage/migrations"
	pgstore "lending-loop-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	skipPostgres := flag.Bool("skip-postgres", false, "Skip PostgreSQL migrations")
	skipClickhouse := flag.Bool("skip-clickhouse", false, "Skip ClickHouse migrations")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall migration timeout")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[migrate] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !*skipPostgres {
		if cfg.Storage.PostgresDSN == "" {
			logger.Fatal("a PostgreSQL DSN is required (or pass --skip-postgres)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			logger.Fatalf("postgres migrations: %v", err)
		}
		pool.Close()
		logger.Println("PostgreSQL migrations applied")
	}

	if !*skipClickhouse {
		if cfg.Storage.ClickhouseDSN == "" {
			logger.Fatal("a ClickHouse DSN is required (or pass --skip-clickhouse)")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			logger.Fatalf("clickhouse migrations: %v", err)
		}
		conn.Close()
		logger.Println("ClickHouse migrations applied")
	}
}
