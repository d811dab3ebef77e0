package postgres

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// MarketStateStore implements storage.MarketStateStore using PostgreSQL.
// The 256-bit totals travel as NUMERIC(78,0) decimal strings: wide enough
// for any uint256 and lossless in both directions.
type MarketStateStore struct {
	pool *Pool
}

// NewMarketStateStore creates a new MarketStateStore.
func NewMarketStateStore(pool *Pool) *MarketStateStore {
	return &MarketStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketStateStore = (*MarketStateStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if (market_id, last_update) exists.
func (s *MarketStateStore) Insert(ctx context.Context, m *domain.MarketState) error {
	if m == nil || m.MarketID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO market_states (
			market_id,
			total_supply_assets, total_supply_shares,
			total_borrow_assets, total_borrow_shares,
			last_update, fee
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		m.MarketID,
		m.TotalSupplyAssets.Dec(), m.TotalSupplyShares.Dec(),
		m.TotalBorrowAssets.Dec(), m.TotalBorrowShares.Dec(),
		m.LastUpdate, m.Fee.Dec(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert market state: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot of a market.
func (s *MarketStateStore) GetLatest(ctx context.Context, marketID string) (*domain.MarketState, error) {
	query := `
		SELECT
			market_id,
			total_supply_assets::text, total_supply_shares::text,
			total_borrow_assets::text, total_borrow_shares::text,
			last_update, fee::text
		FROM market_states
		WHERE market_id = $1
		ORDER BY last_update DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, marketID)
	m, err := scanMarketState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest market state: %w", err)
	}
	return m, nil
}

// GetHistory retrieves all snapshots of a market ordered by last_update ASC.
func (s *MarketStateStore) GetHistory(ctx context.Context, marketID string) ([]*domain.MarketState, error) {
	query := `
		SELECT
			market_id,
			total_supply_assets::text, total_supply_shares::text,
			total_borrow_assets::text, total_borrow_shares::text,
			last_update, fee::text
		FROM market_states
		WHERE market_id = $1
		ORDER BY last_update ASC
	`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("query market state history: %w", err)
	}
	defer rows.Close()

	var states []*domain.MarketState
	for rows.Next() {
		m, err := scanMarketState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market state: %w", err)
		}
		states = append(states, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market states: %w", err)
	}

	return states, nil
}

// scanMarketState scans a single row into a MarketState.
func scanMarketState(row pgx.Row) (*domain.MarketState, error) {
	var m domain.MarketState
	var supplyAssets, supplyShares, borrowAssets, borrowShares, fee string

	err := row.Scan(
		&m.MarketID,
		&supplyAssets, &supplyShares,
		&borrowAssets, &borrowShares,
		&m.LastUpdate, &fee,
	)
	if err != nil {
		return nil, err
	}

	if m.TotalSupplyAssets, err = uint256.FromDecimal(supplyAssets); err != nil {
		return nil, fmt.Errorf("parse total_supply_assets: %w", err)
	}
	if m.TotalSupplyShares, err = uint256.FromDecimal(supplyShares); err != nil {
		return nil, fmt.Errorf("parse total_supply_shares: %w", err)
	}
	if m.TotalBorrowAssets, err = uint256.FromDecimal(borrowAssets); err != nil {
		return nil, fmt.Errorf("parse total_borrow_assets: %w", err)
	}
	if m.TotalBorrowShares, err = uint256.FromDecimal(borrowShares); err != nil {
		return nil, fmt.Errorf("parse total_borrow_shares: %w", err)
	}
	if m.Fee, err = uint256.FromDecimal(fee); err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}

	return &m, nil
}
