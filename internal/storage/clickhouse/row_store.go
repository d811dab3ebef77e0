package clickhouse

import (
	"context"
	"fmt"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// BacktestRowStore implements storage.BacktestRowStore using ClickHouse.
type BacktestRowStore struct {
	conn *Conn
}

// NewBacktestRowStore creates a new BacktestRowStore.
func NewBacktestRowStore(conn *Conn) *BacktestRowStore {
	return &BacktestRowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BacktestRowStore = (*BacktestRowStore)(nil)

// InsertBulk adds multiple rows atomically. Fails entire batch on any
// duplicate (run_id, timestamp).
func (s *BacktestRowStore) InsertBulk(ctx context.Context, rows []*domain.BacktestRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID     string
		timestamp int64
	}
	seen := make(map[key]struct{}, len(rows))
	for _, row := range rows {
		if row == nil || row.RunID == "" {
			return storage.ErrInvalidInput
		}
		k := key{row.RunID, row.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, row := range rows {
		exists, err := s.exists(ctx, row.RunID, row.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO backtest_rows (
			run_id, timestamp, hours_since_prev,
			supply_asset, borrow_asset, spread,
			status, tx_count, swap_count,
			position_value, position_value_after_costs,
			cumulative_tx_count, cumulative_swap_count, cumulative_cost
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		err := batch.Append(
			row.RunID, row.Timestamp, row.HoursSincePrev,
			row.SupplyAsset, row.BorrowAsset, row.Spread,
			string(row.Status), uint32(row.TxCount), uint32(row.SwapCount),
			row.PositionValue, row.PositionValueAfterCosts,
			uint32(row.CumulativeTxCount), uint32(row.CumulativeSwapCount), row.CumulativeCost,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves all rows for a run, ordered by timestamp ASC.
func (s *BacktestRowStore) GetByRunID(ctx context.Context, runID string) ([]*domain.BacktestRow, error) {
	query := `
		SELECT
			run_id, timestamp, hours_since_prev,
			supply_asset, borrow_asset, spread,
			status, tx_count, swap_count,
			position_value, position_value_after_costs,
			cumulative_tx_count, cumulative_swap_count, cumulative_cost
		FROM backtest_rows
		WHERE run_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanBacktestRows(rows)
}

// GetByTimeRange retrieves rows for a run within [start, end] (inclusive).
func (s *BacktestRowStore) GetByTimeRange(ctx context.Context, runID string, start, end int64) ([]*domain.BacktestRow, error) {
	query := `
		SELECT
			run_id, timestamp, hours_since_prev,
			supply_asset, borrow_asset, spread,
			status, tx_count, swap_count,
			position_value, position_value_after_costs,
			cumulative_tx_count, cumulative_swap_count, cumulative_cost
		FROM backtest_rows
		WHERE run_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBacktestRows(rows)
}

// exists checks if a row with the given key exists.
func (s *BacktestRowStore) exists(ctx context.Context, runID string, timestamp int64) (bool, error) {
	query := `
		SELECT count(*) FROM backtest_rows
		WHERE run_id = ? AND timestamp = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, runID, timestamp).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanBacktestRows scans multiple rows.
func scanBacktestRows(rows chRows) ([]*domain.BacktestRow, error) {
	var result []*domain.BacktestRow

	for rows.Next() {
		var r domain.BacktestRow
		var status string
		var txCount, swapCount, cumTxCount, cumSwapCount uint32

		err := rows.Scan(
			&r.RunID, &r.Timestamp, &r.HoursSincePrev,
			&r.SupplyAsset, &r.BorrowAsset, &r.Spread,
			&status, &txCount, &swapCount,
			&r.PositionValue, &r.PositionValueAfterCosts,
			&cumTxCount, &cumSwapCount, &r.CumulativeCost,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest row: %w", err)
		}

		r.Status = domain.RebalanceStatus(status)
		r.TxCount = int(txCount)
		r.SwapCount = int(swapCount)
		r.CumulativeTxCount = int(cumTxCount)
		r.CumulativeSwapCount = int(cumSwapCount)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest rows: %w", err)
	}

	return result, nil
}
