package storage

import (
	"context"

	"lending-loop-lab/internal/domain"
)

// RateObservationStore provides access to rate_observations storage.
type RateObservationStore interface {
	// InsertBulk adds multiple observations atomically. Fails the entire
	// batch on any duplicate (asset, timestamp).
	InsertBulk(ctx context.Context, observations []*domain.RateObservation) error

	// GetByAsset retrieves all observations for an asset, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, asset string) ([]*domain.RateObservation, error)

	// GetByTimeRange retrieves observations across all assets within
	// [start, end] (inclusive), ordered by timestamp ASC then asset ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.RateObservation, error)

	// Assets lists the distinct tracked assets in ascending order.
	Assets(ctx context.Context) ([]string, error)
}

// BacktestRunStore provides access to backtest_runs storage.
type BacktestRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.BacktestRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error)

	// List retrieves all runs ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.BacktestRun, error)
}

// BacktestRowStore provides access to backtest_rows storage.
type BacktestRowStore interface {
	// InsertBulk adds multiple rows atomically. Fails the entire batch on
	// any duplicate (run_id, timestamp).
	InsertBulk(ctx context.Context, rows []*domain.BacktestRow) error

	// GetByRunID retrieves all rows for a run, ordered by timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.BacktestRow, error)

	// GetByTimeRange retrieves rows for a run within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, runID string, start, end int64) ([]*domain.BacktestRow, error)
}

// MarketStateStore provides access to market_states storage, the accrual
// snapshots consumed by live-market collaborators.
type MarketStateStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if (market_id, last_update) exists.
	Insert(ctx context.Context, m *domain.MarketState) error

	// GetLatest retrieves the most recent snapshot of a market.
	// Returns ErrNotFound if the market is untracked.
	GetLatest(ctx context.Context, marketID string) (*domain.MarketState, error)

	// GetHistory retrieves all snapshots of a market ordered by last_update ASC.
	GetHistory(ctx context.Context, marketID string) ([]*domain.MarketState, error)
}
