package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/observability"
	"lending-loop-lab/internal/storage"
)

// fetchConcurrency caps parallel source fetches to stay under API rate limits.
const fetchConcurrency = 4

// Manager coordinates fetching rate observations from sources and
// persisting them in deterministic order.
type Manager struct {
	sources []RateSource
	store   storage.RateObservationStore
	logger  *log.Logger
}

// NewManager creates an ingestion manager.
func NewManager(sources []RateSource, store storage.RateObservationStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[ingestion] ", log.LstdFlags)
	}
	return &Manager{
		sources: sources,
		store:   store,
		logger:  logger,
	}
}

// Backfill fetches observations for all source assets within [from, to]
// and persists them. Observations already present are skipped, so repeated
// backfills over overlapping windows are safe.
func (m *Manager) Backfill(ctx context.Context, from, to int64) (int, error) {
	if from > to {
		return 0, fmt.Errorf("from %d after to %d: %w", from, to, domain.ErrInvalidParameter)
	}

	var mu sync.Mutex
	var collected []domain.RateObservation

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, source := range m.sources {
		for _, asset := range source.Assets() {
			source, asset := source, asset
			g.Go(func() error {
				start := time.Now()
				observations, err := source.Fetch(gctx, asset, from, to)
				observability.DefaultMetrics.SourceFetchLatency.
					WithLabelValues(asset).Observe(time.Since(start).Seconds())
				if err != nil {
					observability.RecordFetchError(asset)
					return fmt.Errorf("fetch %s: %w", asset, err)
				}
				observability.RecordObservationsFetched(len(observations))
				mu.Lock()
				collected = append(collected, observations...)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	ordered := dedupeAndOrder(collected)
	if len(ordered) == 0 {
		m.logger.Printf("Backfill [%d, %d]: no observations", from, to)
		return 0, nil
	}

	stored, err := m.storeBatch(ctx, ordered)
	if err != nil {
		return stored, err
	}
	observability.DefaultMetrics.LastSuccessfulIngestion.SetToCurrentTime()
	m.logger.Printf("Backfill [%d, %d]: fetched %d, stored %d new observations", from, to, len(ordered), stored)
	return stored, nil
}

// RunLive consumes a live stream and persists observations in batches.
// It returns when the context is cancelled or the stream closes.
func (m *Manager) RunLive(ctx context.Context, stream *RateStream, flushInterval time.Duration) error {
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []domain.RateObservation

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		stored, err := m.storeBatch(ctx, dedupeAndOrder(pending))
		if err != nil {
			return err
		}
		m.logger.Printf("Flushed %d observations (%d new)", len(pending), stored)
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			// Best-effort final flush with a fresh context
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := m.flushWith(flushCtx, pending)
			cancel()
			if err != nil {
				m.logger.Printf("Final flush failed: %v", err)
			}
			return ctx.Err()
		case obs, ok := <-stream.Observations():
			if !ok {
				return flush()
			}
			pending = append(pending, obs)
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) flushWith(ctx context.Context, pending []domain.RateObservation) error {
	if len(pending) == 0 {
		return nil
	}
	_, err := m.storeBatch(ctx, dedupeAndOrder(pending))
	return err
}

// storeBatch persists observations, dropping those already stored.
// Returns the number of newly stored observations.
func (m *Manager) storeBatch(ctx context.Context, observations []domain.RateObservation) (int, error) {
	batch := make([]*domain.RateObservation, len(observations))
	for i := range observations {
		obs := observations[i]
		batch[i] = &obs
	}

	err := m.store.InsertBulk(ctx, batch)
	if err == nil {
		observability.RecordObservationsStored(len(batch))
		return len(batch), nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return 0, fmt.Errorf("insert observations: %w", err)
	}

	// Batch collided with stored data; insert one at a time so new
	// observations still land.
	stored := 0
	for _, obs := range batch {
		err := m.store.InsertBulk(ctx, []*domain.RateObservation{obs})
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return stored, fmt.Errorf("insert observation %s@%d: %w", obs.Asset, obs.Timestamp, err)
		}
		stored++
	}
	observability.RecordObservationsStored(stored)
	return stored, nil
}

// dedupeAndOrder removes duplicate (asset, timestamp) entries and sorts
// by timestamp then asset so ingestion order never depends on source order.
func dedupeAndOrder(observations []domain.RateObservation) []domain.RateObservation {
	seen := make(map[string]struct{}, len(observations))
	ordered := make([]domain.RateObservation, 0, len(observations))
	for _, obs := range observations {
		key := fmt.Sprintf("%s|%d", obs.Asset, obs.Timestamp)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, obs)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		return ordered[i].Asset < ordered[j].Asset
	})
	return ordered
}
