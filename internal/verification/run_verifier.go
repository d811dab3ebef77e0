package verification

import (
	"context"
	"errors"
	"fmt"

	"lending-loop-lab/internal/backtest"
	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/observability"
	"lending-loop-lab/internal/storage"
)

var (
	// ErrRunNotFound is returned when the run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrRowCountMismatch is returned when the stored row count differs
	// from the replayed one; individual rows cannot be paired up.
	ErrRowCountMismatch = errors.New("row count mismatch between stored and replayed run")
)

// RunVerifier implements Verifier by re-running the backtest engine over the
// stored observation series.
type RunVerifier struct {
	observationStore storage.RateObservationStore
	runStore         storage.BacktestRunStore
	rowStore         storage.BacktestRowStore
}

// NewRunVerifier creates a new RunVerifier over the given stores.
func NewRunVerifier(observations storage.RateObservationStore, runs storage.BacktestRunStore, rows storage.BacktestRowStore) *RunVerifier {
	return &RunVerifier{
		observationStore: observations,
		runStore:         runs,
		rowStore:         rows,
	}
}

// VerifyRun verifies a single run by replaying it.
func (v *RunVerifier) VerifyRun(ctx context.Context, runID string) (*RunResult, error) {
	stored, err := v.runStore.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	storedRows, err := v.rowStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(storedRows) == 0 {
		return nil, fmt.Errorf("%w: run %s has no stored rows", ErrRunNotFound, runID)
	}

	// Rows come back ordered by timestamp, so they bound the observation
	// window the run was executed over. Observations ingested outside that
	// window afterwards must not change the replay.
	from := storedRows[0].Timestamp
	to := storedRows[len(storedRows)-1].Timestamp
	observations, err := v.observationStore.GetByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	loop := domain.LoopConfig{
		LTV:               stored.LTV,
		StopCondition:     stored.StopCondition,
		InitialCollateral: stored.InitialCollateral,
	}
	policy := domain.PolicyConfig{
		NegativeSpreadThreshold: stored.NegativeSpreadThreshold,
		ConsecutivePeriods:      stored.ConsecutivePeriods,
		TxCostUSD:               stored.TxCostUSD,
		SwapFeePct:              stored.SwapFeePct,
	}

	replayed, err := backtest.Run(ctx, observations, loop, policy)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}

	result := &RunResult{RunID: runID, RowCount: len(storedRows)}

	// A changed observation series changes the run ID itself.
	if replayed.RunID != runID {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field:    "RunID",
			Expected: runID,
			Actual:   replayed.RunID,
		})
	}

	if len(storedRows) != len(replayed.Rows) {
		return nil, fmt.Errorf("%w: stored %d, replayed %d", ErrRowCountMismatch, len(storedRows), len(replayed.Rows))
	}

	for i, row := range storedRows {
		result.Divergences = append(result.Divergences, CompareRows(row, replayed.Rows[i])...)
	}

	result.Match = len(result.Divergences) == 0
	if result.Match {
		observability.RecordVerification("match")
	} else {
		observability.RecordVerification("mismatch")
	}
	return result, nil
}

// VerifyAll verifies all stored runs.
func (v *RunVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	runs, err := v.runStore.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TotalRuns: len(runs),
		Results:   make([]RunResult, 0, len(runs)),
	}

	for _, run := range runs {
		result, err := v.VerifyRun(ctx, run.RunID)
		if err != nil {
			return nil, err
		}

		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
		report.Results = append(report.Results, *result)
	}

	return report, nil
}

var _ Verifier = (*RunVerifier)(nil)
