package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

// RateObservationStore is an in-memory implementation of storage.RateObservationStore.
type RateObservationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RateObservation // keyed by asset|timestamp
}

// NewRateObservationStore creates a new in-memory observation store.
func NewRateObservationStore() *RateObservationStore {
	return &RateObservationStore{
		data: make(map[string]*domain.RateObservation),
	}
}

// observationKey generates a unique key for an observation.
func observationKey(asset string, timestamp int64) string {
	return fmt.Sprintf("%s|%d", asset, timestamp)
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *RateObservationStore) InsertBulk(_ context.Context, observations []*domain.RateObservation) error {
	if len(observations) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(observations))

	// First pass: check for duplicates (existing + intra-batch)
	for _, o := range observations {
		if o == nil || o.Asset == "" {
			return storage.ErrInvalidInput
		}
		key := observationKey(o.Asset, o.Timestamp)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, o := range observations {
		obsCopy := *o
		s.data[observationKey(o.Asset, o.Timestamp)] = &obsCopy
	}

	return nil
}

// GetByAsset retrieves all observations for an asset, ordered by timestamp ASC.
func (s *RateObservationStore) GetByAsset(_ context.Context, asset string) ([]*domain.RateObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RateObservation
	for _, o := range s.data {
		if o.Asset == asset {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// GetByTimeRange retrieves observations within [start, end] (inclusive),
// ordered by timestamp ASC then asset ASC.
func (s *RateObservationStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.RateObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RateObservation
	for _, o := range s.data {
		if o.Timestamp >= start && o.Timestamp <= end {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Asset < result[j].Asset
	})

	return result, nil
}

// Assets lists the distinct tracked assets in ascending order.
func (s *RateObservationStore) Assets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, o := range s.data {
		seen[o.Asset] = struct{}{}
	}

	assets := make([]string, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	return assets, nil
}

var _ storage.RateObservationStore = (*RateObservationStore)(nil)
