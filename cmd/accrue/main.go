package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/holiman/uint256"

	"lending-loop-lab/internal/accrual"
	"lending-loop-lab/internal/config"
	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/fixedpoint"
	"lending-loop-lab/internal/storage"
	chstore "lending-loop-lab/internal/storage/clickhouse"
	"lending-loop-lab/internal/storage/memory"
	pgstore "lending-loop-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	marketID := flag.String("market-id", "", "Market identifier for the snapshots (required)")
	asset := flag.String("asset", "", "Asset whose borrow rates drive the accrual (required)")
	supply := flag.Uint64("supply", 1_000_000, "Initial supply assets in whole tokens")
	borrow := flag.Uint64("borrow", 500_000, "Initial borrow assets in whole tokens")
	feePct := flag.Float64("fee-pct", 0, "Protocol fee as a percentage of interest")
	fromTime := flag.Int64("from", 0, "Start of observation window (unix seconds)")
	toTime := flag.Int64("to", math.MaxInt64, "End of observation window (unix seconds)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[accrue] ", log.LstdFlags)

	if *marketID == "" {
		logger.Fatal("--market-id is required")
	}
	if *asset == "" {
		logger.Fatal("--asset is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
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

	// Create stores
	var observationStore storage.RateObservationStore = memory.NewRateObservationStore()
	var marketStore storage.MarketStateStore = memory.NewMarketStateStore()

	if !*useMemory {
		if cfg.Storage.ClickhouseDSN == "" || cfg.Storage.PostgresDSN == "" {
			logger.Fatal("PostgreSQL and ClickHouse DSNs are required when not using --use-memory")
		}
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()
		observationStore = chstore.NewRateObservationStore(conn)

		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		marketStore = pgstore.NewMarketStateStore(pool)
	}

	observations, err := observationStore.GetByTimeRange(ctx, *fromTime, *toTime)
	if err != nil {
		logger.Fatalf("load observations: %v", err)
	}
	if len(observations) == 0 {
		logger.Fatal("no observations in the selected window")
	}

	initial := initialState(*marketID, *supply, *borrow, *feePct, firstTimestamp(observations, *asset))

	tracker := accrual.NewTracker(marketStore, logger)
	final, err := tracker.Replay(ctx, initial, *asset, observations)
	if err != nil {
		logger.Fatalf("accrual replay failed: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Accrual Result ===")
	fmt.Printf("Market ID:          %s\n", final.MarketID)
	fmt.Printf("Last Update:        %d\n", final.LastUpdate)
	fmt.Printf("Total Supply:       %.6f\n", fixedpoint.WADToFloat(final.TotalSupplyAssets))
	fmt.Printf("Total Borrow:       %.6f\n", fixedpoint.WADToFloat(final.TotalBorrowAssets))
	fmt.Printf("Supply Shares:      %.6f\n", fixedpoint.WADToFloat(final.TotalSupplyShares))
	fmt.Printf("Borrow Shares:      %.6f\n", fixedpoint.WADToFloat(final.TotalBorrowShares))
}

// initialState builds the WAD-scaled seed snapshot. Shares start 1:1 with assets.
func initialState(marketID string, supply, borrow uint64, feePct float64, lastUpdate uint64) *domain.MarketState {
	wad := uint256.NewInt(1e18)
	supplyWAD := new(uint256.Int).Mul(uint256.NewInt(supply), wad)
	borrowWAD := new(uint256.Int).Mul(uint256.NewInt(borrow), wad)

	return &domain.MarketState{
		MarketID:          marketID,
		TotalSupplyAssets: supplyWAD,
		TotalSupplyShares: new(uint256.Int).Set(supplyWAD),
		TotalBorrowAssets: borrowWAD,
		TotalBorrowShares: new(uint256.Int).Set(borrowWAD),
		LastUpdate:        lastUpdate,
		Fee:               uint256.NewInt(uint64(feePct / 100 * 1e18)),
	}
}

// firstTimestamp returns the earliest observation timestamp for the asset,
// so the seed snapshot starts where the rate series does.
func firstTimestamp(observations []*domain.RateObservation, asset string) uint64 {
	var first int64 = math.MaxInt64
	for _, obs := range observations {
		if obs.Asset == asset && obs.Timestamp < first {
			first = obs.Timestamp
		}
	}
	if first == math.MaxInt64 {
		return 0
	}
	return uint64(first)
}
