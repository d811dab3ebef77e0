package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// BacktestRunStore implements storage.BacktestRunStore using PostgreSQL.
type BacktestRunStore struct {
	pool *Pool
}

// NewBacktestRunStore creates a new BacktestRunStore.
func NewBacktestRunStore(pool *Pool) *BacktestRunStore {
	return &BacktestRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BacktestRunStore = (*BacktestRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *BacktestRunStore) Insert(ctx context.Context, r *domain.BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (
			run_id, created_at,
			ltv, stop_condition, initial_collateral, loops, leverage,
			negative_spread_threshold, consecutive_periods, tx_cost_usd, swap_fee_pct,
			period_count, final_value, final_value_after_costs
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.CreatedAt,
		r.LTV, r.StopCondition, r.InitialCollateral, r.Loops, r.Leverage,
		r.NegativeSpreadThreshold, r.ConsecutivePeriods, r.TxCostUSD, r.SwapFeePct,
		r.PeriodCount, r.FinalValue, r.FinalValueAfterCosts,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *BacktestRunStore) GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	query := `
		SELECT
			run_id, created_at,
			ltv, stop_condition, initial_collateral, loops, leverage,
			negative_spread_threshold, consecutive_periods, tx_cost_usd, swap_fee_pct,
			period_count, final_value, final_value_after_costs
		FROM backtest_runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanBacktestRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return r, nil
}

// List retrieves all runs ordered by created_at ASC.
func (s *BacktestRunStore) List(ctx context.Context) ([]*domain.BacktestRun, error) {
	query := `
		SELECT
			run_id, created_at,
			ltv, stop_condition, initial_collateral, loops, leverage,
			negative_spread_threshold, consecutive_periods, tx_cost_usd, swap_fee_pct,
			period_count, final_value, final_value_after_costs
		FROM backtest_runs
		ORDER BY created_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.BacktestRun
	for rows.Next() {
		r, err := scanBacktestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest runs: %w", err)
	}

	return runs, nil
}

// scanBacktestRun scans a single row into a BacktestRun.
func scanBacktestRun(row pgx.Row) (*domain.BacktestRun, error) {
	var r domain.BacktestRun
	err := row.Scan(
		&r.RunID, &r.CreatedAt,
		&r.LTV, &r.StopCondition, &r.InitialCollateral, &r.Loops, &r.Leverage,
		&r.NegativeSpreadThreshold, &r.ConsecutivePeriods, &r.TxCostUSD, &r.SwapFeePct,
		&r.PeriodCount, &r.FinalValue, &r.FinalValueAfterCosts,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
