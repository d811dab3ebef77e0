package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lending-loop-lab/internal/config"
	chstore "lending-loop-lab/internal/storage/clickhouse"
	pgstore "lending-loop-lab/internal/storage/postgres"
	"lending-loop-lab/internal/verification"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	runID := flag.String("run-id", "", "Verify a single run (default: all runs)")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[verify] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.Storage.PostgresDSN == "" || cfg.Storage.ClickhouseDSN == "" {
		logger.Fatal("PostgreSQL and ClickHouse DSNs are required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
	if err != nil {
		logger.Fatalf("connect to clickhouse: %v", err)
	}
	defer conn.Close()

	verifier := verification.NewRunVerifier(
		chstore.NewRateObservationStore(conn),
		pgstore.NewBacktestRunStore(pool),
		chstore.NewBacktestRowStore(conn),
	)

	var report *verification.Report
	if *runID != "" {
		result, err := verifier.VerifyRun(ctx, *runID)
		if err != nil {
			logger.Fatalf("verify run %s: %v", *runID, err)
		}
		report = &verification.Report{TotalRuns: 1, Results: []verification.RunResult{*result}}
		if result.Match {
			report.MatchedRuns = 1
		} else {
			report.DivergentRuns = 1
		}
	} else {
		report, err = verifier.VerifyAll(ctx)
		if err != nil {
			logger.Fatalf("verify all: %v", err)
		}
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		printReport(report)
	}

	if report.DivergentRuns > 0 {
		os.Exit(1)
	}
}

// printReport outputs a human-readable verification report.
func printReport(r *verification.Report) {
	fmt.Println()
	fmt.Println("=== Verification Report ===")
	fmt.Printf("Runs Verified:      %d\n", r.TotalRuns)
	fmt.Printf("Matched:            %d\n", r.MatchedRuns)
	fmt.Printf("Divergent:          %d\n", r.DivergentRuns)

	for _, result := range r.Results {
		if result.Match {
			continue
		}
		fmt.Println()
		fmt.Printf("Run %s (%d rows):\n", result.RunID, result.RowCount)
		for _, d := range result.Divergences {
			fmt.Printf("  %-24s stored %v, replayed %v\n", d.Field, d.Expected, d.Actual)
		}
	}
}
