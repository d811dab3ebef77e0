// Package normalization turns raw per-asset rate observations into a uniform
// in-memory table with an availability mask, the shape every downstream
// component consumes.
package normalization

import (
	"errors"
	"fmt"
	"sort"

	"lending-loop-lab/internal/domain"
)

// Errors returned while building a table.
var (
	// ErrNonMonotonicTimestamps indicates an input series whose timestamps
	// are not strictly increasing. The input is never reordered or repaired.
	ErrNonMonotonicTimestamps = errors.New("timestamps are not strictly increasing")

	// ErrEmptySeries indicates there were no observations at all.
	ErrEmptySeries = errors.New("empty observation series")
)

// RateTable is the normalized rate series: one row per timestamp, one column
// per asset in canonical (lexicographic) order. An entry where supply and
// borrow were simultaneously zero is masked unavailable, distinguishing
// "market inactive" from a genuinely zero rate.
type RateTable struct {
	Assets     []string // canonical order; column index = position here
	Timestamps []int64  // strictly increasing, Unix seconds

	Supply    [][]float64 // [row][col], decimal percentages
	Borrow    [][]float64
	Available [][]bool
}

// NumRows returns the number of periods.
func (t *RateTable) NumRows() int { return len(t.Timestamps) }

// AssetIndex returns the column of the asset, or -1 when untracked.
func (t *RateTable) AssetIndex(asset string) int {
	for i, a := range t.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// HoursSince returns the elapsed hours between row i-1 and row i.
// Row 0 has no predecessor and elapses zero hours.
func (t *RateTable) HoursSince(i int) float64 {
	if i <= 0 {
		return 0
	}
	return float64(t.Timestamps[i]-t.Timestamps[i-1]) / 3600
}

// NewTable builds a RateTable from long-format observations. Observations may
// arrive grouped by asset; within the merged timeline the timestamps must be
// strictly increasing per asset and consistent across assets. An asset with
// no sample at some timestamp is masked unavailable for that row.
func NewTable(observations []*domain.RateObservation) (*RateTable, error) {
	if len(observations) == 0 {
		return nil, ErrEmptySeries
	}

	// Collect canonical asset ordering and the merged timeline.
	assetSet := make(map[string]struct{})
	tsSet := make(map[int64]struct{})
	for _, o := range observations {
		assetSet[o.Asset] = struct{}{}
		tsSet[o.Timestamp] = struct{}{}
	}

	assets := make([]string, 0, len(assetSet))
	for a := range assetSet {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	timestamps := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	// Validate the per-asset series against the merged timeline: strictly
	// increasing, no duplicate samples.
	if err := validateOrdering(observations); err != nil {
		return nil, err
	}

	colIndex := make(map[string]int, len(assets))
	for i, a := range assets {
		colIndex[a] = i
	}
	rowIndex := make(map[int64]int, len(timestamps))
	for i, ts := range timestamps {
		rowIndex[ts] = i
	}

	n, m := len(timestamps), len(assets)
	table := &RateTable{
		Assets:     assets,
		Timestamps: timestamps,
		Supply:     make([][]float64, n),
		Borrow:     make([][]float64, n),
		Available:  make([][]bool, n),
	}
	for i := range table.Supply {
		table.Supply[i] = make([]float64, m)
		table.Borrow[i] = make([]float64, m)
		table.Available[i] = make([]bool, m)
	}

	for _, o := range observations {
		row, col := rowIndex[o.Timestamp], colIndex[o.Asset]
		table.Supply[row][col] = o.SupplyAPY
		table.Borrow[row][col] = o.BorrowAPY
		// Simultaneously-zero supply and borrow means the market was
		// inactive or untracked, not that rates were zero.
		table.Available[row][col] = o.SupplyAPY != 0 || o.BorrowAPY != 0
	}

	return table, nil
}

// validateOrdering rejects series where any asset's samples are out of order
// or duplicated.
func validateOrdering(observations []*domain.RateObservation) error {
	last := make(map[string]int64)
	seenAny := make(map[string]bool)
	for _, o := range observations {
		if seenAny[o.Asset] && o.Timestamp <= last[o.Asset] {
			return fmt.Errorf("%w: asset %s at %d after %d",
				ErrNonMonotonicTimestamps, o.Asset, o.Timestamp, last[o.Asset])
		}
		last[o.Asset] = o.Timestamp
		seenAny[o.Asset] = true
	}
	return nil
}
