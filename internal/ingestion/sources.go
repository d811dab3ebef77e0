package ingestion

import (
	"context"

	"lending-loop-lab/internal/domain"
)

// RateSource provides supply/borrow rate observations from external sources.
type RateSource interface {
	// Fetch returns observations for an asset within time range [from, to]
	// (inclusive, unix seconds). Observations may be unordered; Manager
	// enforces deterministic ordering before persisting.
	Fetch(ctx context.Context, asset string, from, to int64) ([]domain.RateObservation, error)

	// Assets returns the asset names this source can serve.
	Assets() []string
}
