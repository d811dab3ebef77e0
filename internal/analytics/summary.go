// Package analytics computes summary statistics over backtest output.
package analytics

import (
	"math"
	"sort"

	"lending-loop-lab/internal/domain"
)

const hoursPerYear = 24 * 365

// RunSummary aggregates one backtest run's rows into reviewable scalars.
type RunSummary struct {
	RunID       string
	PeriodCount int
	TotalHours  float64

	// Returns
	TotalReturnPct      float64 // final value vs initial, before costs
	AnnualizedReturnPct float64
	FinalValue          float64
	FinalValueAfterCosts float64

	// Per-period return distribution (percent)
	ReturnMean   float64
	ReturnMedian float64
	ReturnP10    float64
	ReturnP90    float64
	ReturnStddev float64

	// Drawdown on the position value series, as fraction of peak
	MaxDrawdownPct float64

	// Activity
	Rebalances        int
	NegativeExits     int
	BestPairSwitches  int
	PeriodsInPosition int
	TotalTxCount      int
	TotalSwapCount    int
	TotalCostUSD      float64
}

// Summarize computes a RunSummary from rows ordered by timestamp.
// Rows are re-sorted defensively so callers may pass storage output directly.
func Summarize(rows []*domain.BacktestRow) *RunSummary {
	n := len(rows)
	if n == 0 {
		return &RunSummary{}
	}

	sorted := make([]*domain.BacktestRow, n)
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	summary := &RunSummary{
		RunID:       sorted[0].RunID,
		PeriodCount: n,
	}

	// Period returns are reconstructed from consecutive position values.
	// The first row's return is measured against the initial value implied
	// by its own period return being unknown, so it is skipped.
	returns := make([]float64, 0, n-1)
	prev := sorted[0].PositionValue
	for _, row := range sorted[1:] {
		if prev > 0 {
			returns = append(returns, (row.PositionValue/prev-1)*100)
		}
		prev = row.PositionValue
	}

	for _, row := range sorted {
		summary.TotalHours += row.HoursSincePrev
		switch row.Status {
		case domain.StatusRebalancedNegative:
			summary.NegativeExits++
		case domain.StatusRebalancedBestPair:
			summary.BestPairSwitches++
		}
		if row.TxCount > 0 {
			summary.Rebalances++
		}
		if row.SupplyAsset != "" {
			summary.PeriodsInPosition++
		}
	}

	last := sorted[n-1]
	summary.FinalValue = last.PositionValue
	summary.FinalValueAfterCosts = last.PositionValueAfterCosts
	summary.TotalTxCount = last.CumulativeTxCount
	summary.TotalSwapCount = last.CumulativeSwapCount
	summary.TotalCostUSD = last.CumulativeCost

	first := sorted[0].PositionValue
	if first > 0 {
		summary.TotalReturnPct = (last.PositionValue/first - 1) * 100
		if summary.TotalHours > 0 {
			years := summary.TotalHours / hoursPerYear
			summary.AnnualizedReturnPct = (math.Pow(last.PositionValue/first, 1/years) - 1) * 100
		}
	}

	if len(returns) > 0 {
		sortedReturns := make([]float64, len(returns))
		copy(sortedReturns, returns)
		sort.Float64s(sortedReturns)

		summary.ReturnMean = mean(returns)
		summary.ReturnMedian = percentile(sortedReturns, 0.50)
		summary.ReturnP10 = percentile(sortedReturns, 0.10)
		summary.ReturnP90 = percentile(sortedReturns, 0.90)
		summary.ReturnStddev = stddev(returns, summary.ReturnMean)
	}

	summary.MaxDrawdownPct = maxDrawdown(sorted)

	return summary
}

// mean calculates the arithmetic mean.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev calculates sample standard deviation (n-1 denominator).
func stddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// percentile uses linear interpolation over a pre-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// maxDrawdown calculates worst peak-to-trough on the position value series,
// as a percentage of the peak. Rows must be in chronological order.
func maxDrawdown(rows []*domain.BacktestRow) float64 {
	peak := 0.0
	worst := 0.0

	for _, row := range rows {
		if row.PositionValue > peak {
			peak = row.PositionValue
		}
		if peak > 0 {
			drawdown := (peak - row.PositionValue) / peak * 100
			if drawdown > worst {
				worst = drawdown
			}
		}
	}
	return worst
}
