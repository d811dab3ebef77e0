package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// MarketStateStore is an in-memory implementation of storage.MarketStateStore.
type MarketStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MarketState // keyed by market_id|last_update
}

// NewMarketStateStore creates a new in-memory market state store.
func NewMarketStateStore() *MarketStateStore {
	return &MarketStateStore{
		data: make(map[string]*domain.MarketState),
	}
}

// marketKey generates a unique key for a market snapshot.
func marketKey(marketID string, lastUpdate uint64) string {
	return fmt.Sprintf("%s|%d", marketID, lastUpdate)
}

// Insert adds a snapshot. Returns ErrDuplicateKey if (market_id, last_update) exists.
func (s *MarketStateStore) Insert(_ context.Context, m *domain.MarketState) error {
	if m == nil || m.MarketID == "" {
		return storage.ErrInvalidInput
	}

	key := marketKey(m.MarketID, m.LastUpdate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Clone: the snapshot holds big-integer pointers
	s.data[key] = m.Clone()
	return nil
}

// GetLatest retrieves the most recent snapshot of a market.
func (s *MarketStateStore) GetLatest(_ context.Context, marketID string) (*domain.MarketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.MarketState
	for _, m := range s.data {
		if m.MarketID != marketID {
			continue
		}
		if latest == nil || m.LastUpdate > latest.LastUpdate {
			latest = m
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	return latest.Clone(), nil
}

// GetHistory retrieves all snapshots of a market ordered by last_update ASC.
func (s *MarketStateStore) GetHistory(_ context.Context, marketID string) ([]*domain.MarketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MarketState
	for _, m := range s.data {
		if m.MarketID == marketID {
			result = append(result, m.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUpdate < result[j].LastUpdate
	})

	return result, nil
}

var _ storage.MarketStateStore = (*MarketStateStore)(nil)
