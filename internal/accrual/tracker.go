// Package accrual maintains protocol-level market state snapshots by
// replaying observed borrow rates through the WAD accrual math.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/fixedpoint"
	"lending-loop-lab/internal/storage"
)

// Tracker advances market states under observed borrow rates and persists
// every snapshot.
type Tracker struct {
	store  storage.MarketStateStore
	logger *log.Logger
}

// NewTracker creates a tracker over the given store.
func NewTracker(store storage.MarketStateStore, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(log.Writer(), "[accrual] ", log.LstdFlags)
	}
	return &Tracker{store: store, logger: logger}
}

// Seed stores the initial snapshot for a market. It fails with
// ErrDuplicateKey if the market already has a snapshot at that timestamp.
func (t *Tracker) Seed(ctx context.Context, state *domain.MarketState) error {
	if err := t.store.Insert(ctx, state); err != nil {
		return fmt.Errorf("seed market %s: %w", state.MarketID, err)
	}
	return nil
}

// Advance accrues the latest snapshot of marketID to the given timestamp
// under borrowAPY (a compounded percentage) and persists the result.
// Advancing to the current LastUpdate is a no-op returning the stored state.
func (t *Tracker) Advance(ctx context.Context, marketID string, timestamp uint64, borrowAPY float64) (*domain.MarketState, error) {
	latest, err := t.store.GetLatest(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("load market %s: %w", marketID, err)
	}
	if timestamp < latest.LastUpdate {
		return nil, fmt.Errorf("timestamp %d before last update %d: %w", timestamp, latest.LastUpdate, domain.ErrInvalidParameter)
	}
	if timestamp == latest.LastUpdate {
		return latest, nil
	}

	rate := fixedpoint.RatePerSecondFromAPY(borrowAPY)
	next, err := fixedpoint.AccrueInterest(timestamp, latest, rate)
	if err != nil {
		return nil, fmt.Errorf("accrue market %s: %w", marketID, err)
	}

	if err := t.store.Insert(ctx, next); err != nil {
		// A concurrent advance landed the same snapshot; treat as success.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return next, nil
		}
		return nil, fmt.Errorf("store market %s: %w", marketID, err)
	}
	return next, nil
}

// Replay seeds a market and advances it through an observed rate series,
// one snapshot per observation. Observations for other assets are ignored.
func (t *Tracker) Replay(ctx context.Context, initial *domain.MarketState, asset string, observations []*domain.RateObservation) (*domain.MarketState, error) {
	series := make([]*domain.RateObservation, 0, len(observations))
	for _, obs := range observations {
		if obs.Asset == asset && obs.Timestamp >= 0 && uint64(obs.Timestamp) >= initial.LastUpdate {
			series = append(series, obs)
		}
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp < series[j].Timestamp
	})

	if err := t.Seed(ctx, initial); err != nil {
		return nil, err
	}

	state := initial
	for _, obs := range series {
		next, err := t.Advance(ctx, initial.MarketID, uint64(obs.Timestamp), obs.BorrowAPY)
		if err != nil {
			return nil, err
		}
		state = next
	}

	t.logger.Printf("Replayed %d observations for market %s through %d", len(series), initial.MarketID, state.LastUpdate)
	return state, nil
}
