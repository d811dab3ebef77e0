package backtest

import (
	"context"
	"time"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/observability"
	"lending-loop-lab/internal/storage"
)

// Runner executes backtests and persists their outcome.
type Runner struct {
	runs storage.BacktestRunStore
	rows storage.BacktestRowStore
}

// NewRunner creates a new backtest runner over the given stores.
func NewRunner(runs storage.BacktestRunStore, rows storage.BacktestRowStore) *Runner {
	return &Runner{runs: runs, rows: rows}
}

// Run executes a backtest and stores the run record plus every row.
// Re-running identical inputs yields the same run_id and fails with
// ErrDuplicateKey from the run store.
func (r *Runner) Run(ctx context.Context, observations []*domain.RateObservation, loop domain.LoopConfig, policy domain.PolicyConfig) (*Result, error) {
	start := time.Now()
	result, err := Run(ctx, observations, loop, policy)
	if err != nil {
		observability.RecordBacktestRun("error", time.Since(start).Seconds())
		return nil, err
	}
	observability.RecordBacktestRun("success", time.Since(start).Seconds())
	observability.RecordPeriodsSimulated(len(result.Rows))
	for _, event := range result.Events {
		observability.RecordRebalance(event.Kind)
	}

	run := &domain.BacktestRun{
		RunID:     result.RunID,
		CreatedAt: time.Now().Unix(),

		LTV:               loop.LTV,
		StopCondition:     loop.StopCondition,
		InitialCollateral: loop.InitialCollateral,
		Loops:             result.Loops,
		Leverage:          result.Leverage,

		NegativeSpreadThreshold: policy.NegativeSpreadThreshold,
		ConsecutivePeriods:      policy.ConsecutivePeriods,
		TxCostUSD:               policy.TxCostUSD,
		SwapFeePct:              policy.SwapFeePct,

		PeriodCount:          len(result.Rows),
		FinalValue:           result.FinalValue,
		FinalValueAfterCosts: result.FinalValueAfterCosts,
	}

	if err := r.runs.Insert(ctx, run); err != nil {
		return nil, err
	}
	if err := r.rows.InsertBulk(ctx, result.Rows); err != nil {
		return nil, err
	}

	observability.DefaultMetrics.LastSuccessfulBacktest.SetToCurrentTime()
	return result, nil
}
