package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lending-loop-lab/internal/config"
	"lending-loop-lab/internal/ingestion"
	"lending-loop-lab/internal/observability"
	"lending-loop-lab/internal/storage"
	chstore "lending-loop-lab/internal/storage/clickhouse"
	"lending-loop-lab/internal/storage/memory"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "backfill", "Ingestion mode: backfill or live")
	configPath := flag.String("config", "", "Path to YAML config file")
	csvPath := flag.String("csv", "", "Ingest from a CSV file instead of the DefiLlama API")
	fromTime := flag.String("from-time", "", "Start time for backfill (RFC3339)")
	toTime := flag.String("to-time", "", "End time for backfill (RFC3339)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of ClickHouse")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	addr := cfg.Metrics.Addr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}

	// Start metrics server if enabled
	if addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Create observation store
	var store storage.RateObservationStore = memory.NewRateObservationStore()
	if !*useMemory {
		if cfg.Storage.ClickhouseDSN == "" {
			logger.Fatal("a ClickHouse DSN is required when not using --use-memory")
		}
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()
		store = chstore.NewRateObservationStore(conn)
	}

	// Run based on mode
	switch *mode {
	case "backfill":
		err = runBackfill(ctx, logger, cfg, store, *csvPath, *fromTime, *toTime)
	case "live":
		err = runLive(ctx, logger, cfg, store)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// runBackfill fetches historical rates and persists them.
func runBackfill(ctx context.Context, logger *log.Logger, cfg *config.Config, store storage.RateObservationStore, csvPath, fromTime, toTime string) error {
	from, to, err := parseWindow(fromTime, toTime)
	if err != nil {
		return err
	}

	var source ingestion.RateSource
	if csvPath != "" {
		source = ingestion.NewCSVSource(csvPath)
	} else {
		source = ingestion.NewLlamaSource(
			ingestion.WithBaseURL(cfg.Ingestion.LlamaBaseURL),
			ingestion.WithPools(cfg.Ingestion.Pools),
		)
	}

	manager := ingestion.NewManager([]ingestion.RateSource{source}, store, logger)
	stored, err := manager.Backfill(ctx, from, to)
	if err != nil {
		return err
	}
	logger.Printf("Backfill stored %d new observations", stored)
	return nil
}

// runLive subscribes to the rate feed and persists observations until cancelled.
func runLive(ctx context.Context, logger *log.Logger, cfg *config.Config, store storage.RateObservationStore) error {
	if cfg.Ingestion.StreamEndpoint == "" {
		return fmt.Errorf("a stream endpoint is required for live mode")
	}

	assets := make([]string, 0, len(cfg.Ingestion.Pools))
	for asset := range cfg.Ingestion.Pools {
		assets = append(assets, asset)
	}

	stream, err := ingestion.NewRateStream(ctx, cfg.Ingestion.StreamEndpoint, assets, nil)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer stream.Close()

	logger.Printf("Streaming rates for %d assets from %s", len(assets), cfg.Ingestion.StreamEndpoint)

	manager := ingestion.NewManager(nil, store, logger)
	return manager.RunLive(ctx, stream, cfg.FlushInterval())
}

// parseWindow converts RFC3339 bounds into unix seconds. An empty from
// defaults to one year ago, an empty to defaults to now.
func parseWindow(fromTime, toTime string) (int64, int64, error) {
	now := time.Now()
	from := now.AddDate(-1, 0, 0).Unix()
	to := now.Unix()

	if fromTime != "" {
		t, err := time.Parse(time.RFC3339, fromTime)
		if err != nil {
			return 0, 0, fmt.Errorf("parse --from-time: %w", err)
		}
		from = t.Unix()
	}
	if toTime != "" {
		t, err := time.Parse(time.RFC3339, toTime)
		if err != nil {
			return 0, 0, fmt.Errorf("parse --to-time: %w", err)
		}
		to = t.Unix()
	}
	return from, to, nil
}
