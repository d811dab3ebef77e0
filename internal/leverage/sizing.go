// Package leverage sizes the recursive borrow/supply loop.
package leverage

import (
	"math"

	"lending-loop-lab/internal/domain"
)

// Plan is the derived loop sizing, immutable for the duration of one run.
type Plan struct {
	Loops             int     // recursive borrow/supply iterations
	InitialCollateral float64 // currency units
	TotalCollateral   float64 // geometric sum of re-supplied collateral
	Leverage          float64 // TotalCollateral / InitialCollateral
}

// Compute derives the loop plan from the config.
//
// Each loop re-supplies LTV times the previous deposit, so looping stops once
// the marginal deposit falls below StopCondition of the initial one:
// loops = ceil(ln(stop)/ln(LTV)). Total collateral is the geometric series
// initial * (1 - LTV^(loops+1)) / (1 - LTV).
func Compute(cfg domain.LoopConfig) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loops := int(math.Ceil(math.Log(cfg.StopCondition) / math.Log(cfg.LTV)))
	total := cfg.InitialCollateral * (1 - math.Pow(cfg.LTV, float64(loops+1))) / (1 - cfg.LTV)

	return &Plan{
		Loops:             loops,
		InitialCollateral: cfg.InitialCollateral,
		TotalCollateral:   total,
		Leverage:          total / cfg.InitialCollateral,
	}, nil
}
