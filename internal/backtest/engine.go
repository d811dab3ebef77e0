// Package backtest assembles the full pipeline: normalize the rate series,
// select per-period best pairs, run the position simulator and charge every
// transition, producing the cost-adjusted row sequence.
package backtest

import (
	"context"

	"lending-loop-lab/internal/costs"
	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/idhash"
	"lending-loop-lab/internal/leverage"
	"lending-loop-lab/internal/normalization"
	"lending-loop-lab/internal/selection"
	"lending-loop-lab/internal/simulator"
)

// Result holds one completed backtest run.
type Result struct {
	RunID string

	Loops           int
	Leverage        float64
	TotalCollateral float64

	Rows   []*domain.BacktestRow
	Events []domain.RebalanceEvent

	FinalValue           float64
	FinalValueAfterCosts float64
}

// Run executes the state-machine backtest over a raw observation series.
// The run is a pure function of its inputs: identical inputs always produce
// byte-identical rows.
func Run(ctx context.Context, observations []*domain.RateObservation, loop domain.LoopConfig, policy domain.PolicyConfig) (*Result, error) {
	plan, err := leverage.Compute(loop)
	if err != nil {
		return nil, err
	}

	table, err := normalization.NewTable(observations)
	if err != nil {
		return nil, err
	}

	pairs, err := selection.Pairs(ctx, table)
	if err != nil {
		return nil, err
	}

	sim, err := simulator.New(table, pairs, plan, policy)
	if err != nil {
		return nil, err
	}
	periods, events, err := sim.Run()
	if err != nil {
		return nil, err
	}

	n := table.NumRows()
	runID := idhash.ComputeRunID(table.Timestamps[0], table.Timestamps[n-1], len(observations), loop, policy)

	accountant := costs.NewAccountant(policy, plan.Loops, plan.Leverage)
	rows := make([]*domain.BacktestRow, 0, n)
	eventIdx := 0

	for _, p := range periods {
		charge := accountant.Apply(p.Transition, p.Value)
		if p.Transition != simulator.TransitionHold {
			events[eventIdx].TxCount = charge.TxCount
			events[eventIdx].SwapCount = charge.SwapCount
			eventIdx++
		}

		rows = append(rows, &domain.BacktestRow{
			RunID:          runID,
			Timestamp:      p.Timestamp,
			HoursSincePrev: p.HoursSincePrev,

			SupplyAsset: p.State.SupplyAsset,
			BorrowAsset: p.State.BorrowAsset,
			Spread:      p.State.Spread,

			Status:    p.Status,
			TxCount:   charge.TxCount,
			SwapCount: charge.SwapCount,

			PositionValue:           p.Value,
			PositionValueAfterCosts: p.Value - charge.CumulativeCost,

			CumulativeTxCount:   charge.CumulativeTxCount,
			CumulativeSwapCount: charge.CumulativeSwapCount,
			CumulativeCost:      charge.CumulativeCost,
		})
	}

	last := rows[len(rows)-1]
	return &Result{
		RunID:                runID,
		Loops:                plan.Loops,
		Leverage:             plan.Leverage,
		TotalCollateral:      plan.TotalCollateral,
		Rows:                 rows,
		Events:               events,
		FinalValue:           last.PositionValue,
		FinalValueAfterCosts: last.PositionValueAfterCosts,
	}, nil
}
