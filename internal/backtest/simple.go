package backtest

import (
	"math"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/leverage"
	"lending-loop-lab/internal/normalization"
	"lending-loop-lab/internal/selection"
)

// SimplePoint is one period of the always-rebalanced variant.
type SimplePoint struct {
	Timestamp    int64
	MaxSupplyAPY float64
	Spread       float64
	// FinalAPY is the levered annualized rate assuming the position always
	// sits on the period's best pair.
	FinalAPY float64
	// CompoundedBalance compounds FinalAPY at its daily root.
	CompoundedBalance float64
}

// SimpleResult holds the output of RunSimple.
type SimpleResult struct {
	Loops           int
	Leverage        float64
	TotalCollateral float64

	Points          []SimplePoint
	AverageFinalAPY float64
	FinalBalance    float64
}

// RunSimple executes the frictionless upper-bound variant: every period the
// position is assumed to hold the best pair, with no rebalance rules and no
// costs. Periods with no available asset are dropped rather than compounded.
// It brackets what the state-machine run can at best achieve.
func RunSimple(observations []*domain.RateObservation, loop domain.LoopConfig) (*SimpleResult, error) {
	plan, err := leverage.Compute(loop)
	if err != nil {
		return nil, err
	}

	table, err := normalization.NewTable(observations)
	if err != nil {
		return nil, err
	}

	points := make([]SimplePoint, 0, table.NumRows())
	balance := loop.InitialCollateral
	var apySum float64

	for i := 0; i < table.NumRows(); i++ {
		pair := selection.PairAt(table, i)
		if pair == nil {
			continue
		}

		finalAPY := pair.SupplyAPY + pair.Spread*(plan.Leverage-1)
		apySum += finalAPY

		// Daily compounding at the APY's 365th root, one step per period.
		balance *= math.Pow(1+finalAPY/100, 1.0/365)

		points = append(points, SimplePoint{
			Timestamp:         table.Timestamps[i],
			MaxSupplyAPY:      pair.SupplyAPY,
			Spread:            pair.Spread,
			FinalAPY:          finalAPY,
			CompoundedBalance: balance,
		})
	}

	result := &SimpleResult{
		Loops:           plan.Loops,
		Leverage:        plan.Leverage,
		TotalCollateral: plan.TotalCollateral,
		Points:          points,
		FinalBalance:    balance,
	}
	if len(points) > 0 {
		result.AverageFinalAPY = apySum / float64(len(points))
	}
	return result, nil
}
