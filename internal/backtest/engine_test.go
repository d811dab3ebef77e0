package backtest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/normalization"
)

const hour = int64(3600)

func obs(ts int64, asset string, supply, borrow float64) *domain.RateObservation {
	return &domain.RateObservation{Timestamp: ts, Asset: asset, SupplyAPY: supply, BorrowAPY: borrow}
}

var (
	testLoop = domain.LoopConfig{LTV: 0.9, StopCondition: 0.8, InitialCollateral: 100}

	// Open at t0, hold, circuit-break at t3, reopen at t4.
	testSeries = []*domain.RateObservation{
		obs(0, "usdc", 10, 2), obs(0, "dai", 6, 3),
		obs(24*hour, "usdc", 10, 2), obs(24*hour, "dai", 6, 3),
		obs(48*hour, "usdc", 9, 3), obs(48*hour, "dai", 6, 3),
		obs(72*hour, "usdc", 1, 16), obs(72*hour, "dai", 2, 18),
		obs(96*hour, "usdc", 10, 2), obs(96*hour, "dai", 6, 3),
	}
)

func TestRun_EndToEnd(t *testing.T) {
	result, err := Run(context.Background(), testSeries, testLoop, domain.DefaultPolicy)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Loops != 3 {
		t.Errorf("Loops = %d, want 3", result.Loops)
	}
	if len(result.Rows) != 5 {
		t.Fatalf("got %d rows, want 5", len(result.Rows))
	}
	if len(result.RunID) != 64 {
		t.Errorf("RunID length = %d, want 64", len(result.RunID))
	}

	wantStatus := []domain.RebalanceStatus{
		domain.StatusRebalancedBestPair, // open
		domain.StatusNoRebalance,
		domain.StatusNoRebalance,
		domain.StatusRebalancedNegative, // -15 spread breaker
		domain.StatusRebalancedBestPair, // reopen
	}
	for i, row := range result.Rows {
		if row.Status != wantStatus[i] {
			t.Errorf("row %d: status %v, want %v", i, row.Status, wantStatus[i])
		}
		if row.RunID != result.RunID {
			t.Errorf("row %d: RunID %s, want %s", i, row.RunID, result.RunID)
		}
	}

	breaker := result.Rows[3]
	if breaker.SupplyAsset != "" || breaker.BorrowAsset != "" {
		t.Errorf("position not closed after breaker: %+v", breaker)
	}

	// open, negative close, reopen
	if len(result.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(result.Events))
	}
	for i, ev := range result.Events {
		if ev.TxCount == 0 {
			t.Errorf("event %d has no transaction count: %+v", i, ev)
		}
	}

	if result.FinalValue != result.Rows[4].PositionValue {
		t.Errorf("FinalValue = %v, want last row's %v", result.FinalValue, result.Rows[4].PositionValue)
	}
}

func TestRun_CostsAreMonotonic(t *testing.T) {
	result, err := Run(context.Background(), testSeries, testLoop, domain.DefaultPolicy)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var prevCost float64
	prevTx, prevSwap := 0, 0
	for i, row := range result.Rows {
		if row.CumulativeCost < prevCost || row.CumulativeTxCount < prevTx || row.CumulativeSwapCount < prevSwap {
			t.Fatalf("row %d: cumulative counters decreased: %+v", i, row)
		}
		if row.PositionValueAfterCosts != row.PositionValue-row.CumulativeCost {
			t.Errorf("row %d: after-costs value inconsistent", i)
		}
		prevCost, prevTx, prevSwap = row.CumulativeCost, row.CumulativeTxCount, row.CumulativeSwapCount
	}
}

func TestRun_Deterministic(t *testing.T) {
	r1, err := Run(context.Background(), testSeries, testLoop, domain.DefaultPolicy)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	r2, err := Run(context.Background(), testSeries, testLoop, domain.DefaultPolicy)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if r1.RunID != r2.RunID {
		t.Errorf("RunID differs: %s != %s", r1.RunID, r2.RunID)
	}
	if !reflect.DeepEqual(r1.Rows, r2.Rows) {
		t.Error("rows differ between identical runs")
	}
	if !reflect.DeepEqual(r1.Events, r2.Events) {
		t.Error("events differ between identical runs")
	}
}

func TestRun_InvalidParameters(t *testing.T) {
	badLoop := testLoop
	badLoop.LTV = 1.5

	_, err := Run(context.Background(), testSeries, badLoop, domain.DefaultPolicy)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}

	badPolicy := domain.DefaultPolicy
	badPolicy.ConsecutivePeriods = 0
	_, err = Run(context.Background(), testSeries, testLoop, badPolicy)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}
}

func TestRun_RejectsUnorderedInput(t *testing.T) {
	series := []*domain.RateObservation{
		obs(24*hour, "usdc", 10, 2),
		obs(0, "usdc", 10, 2),
	}

	_, err := Run(context.Background(), series, testLoop, domain.DefaultPolicy)
	if !errors.Is(err, normalization.ErrNonMonotonicTimestamps) {
		t.Errorf("Expected ErrNonMonotonicTimestamps, got %v", err)
	}
}
