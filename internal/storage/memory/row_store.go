package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// BacktestRowStore is an in-memory implementation of storage.BacktestRowStore.
type BacktestRowStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestRow // keyed by run_id|timestamp
}

// NewBacktestRowStore creates a new in-memory row store.
func NewBacktestRowStore() *BacktestRowStore {
	return &BacktestRowStore{
		data: make(map[string]*domain.BacktestRow),
	}
}

// rowKey generates a unique key for a backtest row.
func rowKey(runID string, timestamp int64) string {
	return fmt.Sprintf("%s|%d", runID, timestamp)
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *BacktestRowStore) InsertBulk(_ context.Context, rows []*domain.BacktestRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(rows))

	// First pass: check for duplicates (existing + intra-batch)
	for _, row := range rows {
		if row == nil || row.RunID == "" {
			return storage.ErrInvalidInput
		}
		key := rowKey(row.RunID, row.Timestamp)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, row := range rows {
		rowCopy := *row
		s.data[rowKey(row.RunID, row.Timestamp)] = &rowCopy
	}

	return nil
}

// GetByRunID retrieves all rows for a run, ordered by timestamp ASC.
func (s *BacktestRowStore) GetByRunID(_ context.Context, runID string) ([]*domain.BacktestRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestRow
	for _, row := range s.data {
		if row.RunID == runID {
			rowCopy := *row
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// GetByTimeRange retrieves rows for a run within [start, end] (inclusive).
func (s *BacktestRowStore) GetByTimeRange(_ context.Context, runID string, start, end int64) ([]*domain.BacktestRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestRow
	for _, row := range s.data {
		if row.RunID == runID && row.Timestamp >= start && row.Timestamp <= end {
			rowCopy := *row
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

var _ storage.BacktestRowStore = (*BacktestRowStore)(nil)
