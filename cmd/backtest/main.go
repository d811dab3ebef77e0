package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"

	"lending-loop-lab/internal/analytics"
	"lending-loop-lab/internal/backtest"
	"lending-loop-lab/internal/config"
	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/ingestion"
	"lending-loop-lab/internal/storage"
	chstore "lending-loop-lab/internal/storage/clickhouse"
	"lending-loop-lab/internal/storage/memory"
	pgstore "lending-loop-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	csvPath := flag.String("csv", "", "Read observations from a CSV file instead of ClickHouse")
	fromTime := flag.Int64("from", 0, "Start of observation window (unix seconds)")
	toTime := flag.Int64("to", math.MaxInt64, "End of observation window (unix seconds)")

	// Loop sizing overrides
	ltv := flag.Float64("ltv", 0, "Loan-to-value ratio per loop (overrides config)")
	stopCondition := flag.Float64("stop-condition", 0, "Collateral fraction at which looping stops (overrides config)")
	initialCollateral := flag.Float64("initial-collateral", 0, "Initial collateral in USD (overrides config)")

	// Mode and output
	simple := flag.Bool("simple", false, "Run the leveraged-APY estimate without the rebalancing state machine")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	persist := flag.Bool("persist", false, "Persist run and rows to storage")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	loop := cfg.LoopConfig()
	if *ltv > 0 {
		loop.LTV = *ltv
	}
	if *stopCondition > 0 {
		loop.StopCondition = *stopCondition
	}
	if *initialCollateral > 0 {
		loop.InitialCollateral = *initialCollateral
	}
	policy := cfg.PolicyConfig()

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

	// Load observations
	var observations []*domain.RateObservation
	if *csvPath != "" {
		parsed, err := readCSVObservations(*csvPath)
		if err != nil {
			logger.Fatalf("read csv: %v", err)
		}
		observations = parsed
	} else {
		dsn := cfg.Storage.ClickhouseDSN
		if dsn == "" {
			logger.Fatal("--csv or a ClickHouse DSN is required to load observations")
		}
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()

		store := chstore.NewRateObservationStore(conn)
		observations, err = store.GetByTimeRange(ctx, *fromTime, *toTime)
		if err != nil {
			logger.Fatalf("load observations: %v", err)
		}
	}
	if len(observations) == 0 {
		logger.Fatal("no observations in the selected window")
	}
	logger.Printf("Loaded %d observations", len(observations))

	if *simple {
		result, err := backtest.RunSimple(observations, loop)
		if err != nil {
			logger.Fatalf("backtest failed: %v", err)
		}
		if *outputJSON {
			output, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(output))
		} else {
			printSimpleResult(result)
		}
		return
	}

	var result *backtest.Result
	if *persist {
		runStore, rowStore, cleanup := openStores(ctx, logger, cfg, *useMemory)
		defer cleanup()

		runner := backtest.NewRunner(runStore, rowStore)
		result, err = runner.Run(ctx, observations, loop, policy)
	} else {
		result, err = backtest.Run(ctx, observations, loop, policy)
	}
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		printResult(result)
	}
}

// openStores returns run and row stores, backed by memory or by
// PostgreSQL and ClickHouse depending on flags.
func openStores(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) (storage.BacktestRunStore, storage.BacktestRowStore, func()) {
	if useMemory {
		return memory.NewBacktestRunStore(), memory.NewBacktestRowStore(), func() {}
	}

	if cfg.Storage.PostgresDSN == "" {
		logger.Fatal("a PostgreSQL DSN is required to persist runs (or pass --use-memory)")
	}
	if cfg.Storage.ClickhouseDSN == "" {
		logger.Fatal("a ClickHouse DSN is required to persist rows (or pass --use-memory)")
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}

	conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
	if err != nil {
		pool.Close()
		logger.Fatalf("connect to clickhouse: %v", err)
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return pgstore.NewBacktestRunStore(pool), chstore.NewBacktestRowStore(conn), cleanup
}

func readCSVObservations(path string) ([]*domain.RateObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := ingestion.ReadObservations(f)
	if err != nil {
		return nil, err
	}

	observations := make([]*domain.RateObservation, len(parsed))
	for i := range parsed {
		observations[i] = &parsed[i]
	}
	return observations, nil
}

// printResult outputs a human-readable run summary.
func printResult(r *backtest.Result) {
	summary := analytics.Summarize(r.Rows)

	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", r.RunID)
	fmt.Printf("Loops:              %d\n", r.Loops)
	fmt.Printf("Leverage:           %.4f\n", r.Leverage)
	fmt.Printf("Total Collateral:   %.2f\n", r.TotalCollateral)
	fmt.Printf("Periods:            %d (%.0f hours)\n", summary.PeriodCount, summary.TotalHours)
	fmt.Println()

	fmt.Println("Returns:")
	fmt.Printf("  Final Value:      %.2f\n", r.FinalValue)
	fmt.Printf("  After Costs:      %.2f\n", r.FinalValueAfterCosts)
	fmt.Printf("  Total Return:     %.2f%%\n", summary.TotalReturnPct)
	fmt.Printf("  Annualized:       %.2f%%\n", summary.AnnualizedReturnPct)
	fmt.Printf("  Max Drawdown:     %.2f%%\n", summary.MaxDrawdownPct)
	fmt.Println()

	fmt.Println("Activity:")
	fmt.Printf("  Rebalances:       %d\n", summary.Rebalances)
	fmt.Printf("  Negative Exits:   %d\n", summary.NegativeExits)
	fmt.Printf("  Pair Switches:    %d\n", summary.BestPairSwitches)
	fmt.Printf("  Transactions:     %d\n", summary.TotalTxCount)
	fmt.Printf("  Swaps:            %d\n", summary.TotalSwapCount)
	fmt.Printf("  Total Cost:       %.2f USD\n", summary.TotalCostUSD)
}

// printSimpleResult outputs the no-rebalancing estimate.
func printSimpleResult(r *backtest.SimpleResult) {
	fmt.Println()
	fmt.Println("=== Simple Estimate ===")
	fmt.Printf("Loops:              %d\n", r.Loops)
	fmt.Printf("Leverage:           %.4f\n", r.Leverage)
	fmt.Printf("Total Collateral:   %.2f\n", r.TotalCollateral)
	fmt.Printf("Periods:            %d\n", len(r.Points))
	fmt.Printf("Average Final APY:  %.2f%%\n", r.AverageFinalAPY)
	fmt.Printf("Final Balance:      %.2f\n", r.FinalBalance)
}
