package clickhouse

import (
	"context"
	"fmt"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// RateObservationStore implements storage.RateObservationStore using ClickHouse.
type RateObservationStore struct {
	conn *Conn
}

// NewRateObservationStore creates a new RateObservationStore.
func NewRateObservationStore(conn *Conn) *RateObservationStore {
	return &RateObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RateObservationStore = (*RateObservationStore)(nil)

// InsertBulk adds multiple observations atomically. Fails entire batch on
// any duplicate (asset, timestamp). MergeTree does not enforce uniqueness,
// so duplicates are checked explicitly before the batch is sent.
func (s *RateObservationStore) InsertBulk(ctx context.Context, observations []*domain.RateObservation) error {
	if len(observations) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		asset     string
		timestamp int64
	}
	seen := make(map[key]struct{}, len(observations))
	for _, o := range observations {
		if o == nil || o.Asset == "" {
			return storage.ErrInvalidInput
		}
		k := key{o.Asset, o.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, o := range observations {
		exists, err := s.exists(ctx, o.Asset, o.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO rate_observations (asset, timestamp, supply_apy, borrow_apy)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range observations {
		if err := batch.Append(o.Asset, o.Timestamp, o.SupplyAPY, o.BorrowAPY); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAsset retrieves all observations for an asset, ordered by timestamp ASC.
func (s *RateObservationStore) GetByAsset(ctx context.Context, asset string) ([]*domain.RateObservation, error) {
	query := `
		SELECT asset, timestamp, supply_apy, borrow_apy
		FROM rate_observations
		WHERE asset = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, asset)
	if err != nil {
		return nil, fmt.Errorf("query by asset: %w", err)
	}
	defer rows.Close()

	return scanRateObservations(rows)
}

// GetByTimeRange retrieves observations across all assets within [start, end]
// (inclusive), ordered by timestamp ASC then asset ASC.
func (s *RateObservationStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.RateObservation, error) {
	query := `
		SELECT asset, timestamp, supply_apy, borrow_apy
		FROM rate_observations
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, asset ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanRateObservations(rows)
}

// Assets lists the distinct tracked assets in ascending order.
func (s *RateObservationStore) Assets(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT asset
		FROM rate_observations
		ORDER BY asset ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct assets: %w", err)
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}

	return assets, nil
}

// exists checks if an observation with the given key exists.
func (s *RateObservationStore) exists(ctx context.Context, asset string, timestamp int64) (bool, error) {
	query := `
		SELECT count(*) FROM rate_observations
		WHERE asset = ? AND timestamp = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, asset, timestamp).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanRateObservations scans multiple rows.
func scanRateObservations(rows chRows) ([]*domain.RateObservation, error) {
	var observations []*domain.RateObservation

	for rows.Next() {
		var o domain.RateObservation
		if err := rows.Scan(&o.Asset, &o.Timestamp, &o.SupplyAPY, &o.BorrowAPY); err != nil {
			return nil, fmt.Errorf("scan rate observation row: %w", err)
		}
		observations = append(observations, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate observations: %w", err)
	}

	return observations, nil
}
