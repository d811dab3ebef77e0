package simulator

import (
	"context"
	"math"
	"reflect"
	"testing"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/leverage"
	"lending-loop-lab/internal/normalization"
	"lending-loop-lab/internal/selection"
)

const hour = int64(3600)

// obs is shorthand for building long-format observations in tests.
func obs(ts int64, asset string, supply, borrow float64) *domain.RateObservation {
	return &domain.RateObservation{Timestamp: ts, Asset: asset, SupplyAPY: supply, BorrowAPY: borrow}
}

func runSim(t *testing.T, observations []*domain.RateObservation, loop domain.LoopConfig, policy domain.PolicyConfig) ([]Period, []domain.RebalanceEvent) {
	t.Helper()

	table, err := normalization.NewTable(observations)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	pairs, err := selection.Pairs(context.Background(), table)
	if err != nil {
		t.Fatalf("Pairs failed: %v", err)
	}
	plan, err := leverage.Compute(loop)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	sim, err := New(table, pairs, plan, policy)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	periods, events, err := sim.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return periods, events
}

var testLoop = domain.LoopConfig{LTV: 0.5, StopCondition: 0.5, InitialCollateral: 100}

func TestRun_OpensOnPositiveSpread(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),
		obs(24*hour, "usdc", 10, 2),
	}
	periods, events := runSim(t, series, testLoop, domain.DefaultPolicy)

	first := periods[0]
	if first.Transition != TransitionOpen {
		t.Fatalf("Transition = %v, want open", first.Transition)
	}
	if first.Status != domain.StatusRebalancedBestPair {
		t.Errorf("Status = %v, want rebalanced_best_pair", first.Status)
	}
	if first.State.Kind != LeveragedPosition || first.State.SupplyAsset != "usdc" || first.State.BorrowAsset != "usdc" {
		t.Errorf("unexpected opened state: %+v", first.State)
	}
	if first.State.Spread != 8 {
		t.Errorf("Spread = %v, want 8", first.State.Spread)
	}

	if len(events) != 1 || events[0].Kind != string(TransitionOpen) {
		t.Fatalf("events = %+v, want a single open", events)
	}
	if events[0].FromSupply != "" || events[0].ToSupply != "usdc" {
		t.Errorf("event legs = %+v", events[0])
	}
}

func TestRun_DoesNotOpenOnNonPositiveSpread(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "usdc", 2, 5),
		obs(24*hour, "usdc", 2, 5),
	}
	periods, events := runSim(t, series, testLoop, domain.DefaultPolicy)

	for _, p := range periods {
		if p.Transition != TransitionHold || p.State.Kind != NoPosition {
			t.Errorf("period %d: transition %v, state %+v", p.Index, p.Transition, p.State)
		}
		if p.Value != 100 {
			t.Errorf("period %d: value %v, want 100", p.Index, p.Value)
		}
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}
}

func TestRun_NegativeSpreadCircuitBreaker(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),
		obs(24*hour, "usdc", 1, 16), // spread -15, below the -10 breaker
	}
	periods, _ := runSim(t, series, testLoop, domain.DefaultPolicy)

	row := periods[1]
	if row.Transition != TransitionNegativeClose {
		t.Fatalf("Transition = %v, want negative_close", row.Transition)
	}
	if row.Status != domain.StatusRebalancedNegative {
		t.Errorf("Status = %v, want rebalanced_negative", row.Status)
	}
	if row.State.Kind != NoPosition || row.State.BorrowAsset != "" || row.State.SupplyAsset != "" {
		t.Errorf("position not closed: %+v", row.State)
	}
}

func TestRun_PersistentSuboptimalDelevers(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),         // open
		obs(24*hour, "usdc", 3, 4),    // spread -1, run 1
		obs(48*hour, "usdc", 3, 4),    // run 2
		obs(72*hour, "usdc", 3, 4),    // run 3 -> delever
		obs(96*hour, "usdc", 3, 4),    // simple, hold
	}
	periods, _ := runSim(t, series, testLoop, domain.DefaultPolicy)

	for _, i := range []int{1, 2} {
		if periods[i].Transition != TransitionHold {
			t.Errorf("period %d: transition %v, want hold", i, periods[i].Transition)
		}
	}

	row := periods[3]
	if row.Transition != TransitionDelever {
		t.Fatalf("Transition = %v, want delever", row.Transition)
	}
	if row.Status != domain.StatusRebalancedNegative {
		t.Errorf("Status = %v, want rebalanced_negative", row.Status)
	}
	if row.State.Kind != SimplePosition || row.State.SupplyAsset != "usdc" || row.State.BorrowAsset != "" {
		t.Errorf("unexpected delevered state: %+v", row.State)
	}
	// The supply leg keeps earning at the rate locked when the position
	// was last rebalanced.
	if row.State.SupplyAPY != 10 {
		t.Errorf("SupplyAPY = %v, want 10", row.State.SupplyAPY)
	}

	if periods[4].Transition != TransitionHold || periods[4].State.Kind != SimplePosition {
		t.Errorf("period 4 should hold the simple position: %+v", periods[4])
	}
}

func TestRun_BestPairSwitchAfterWindow(t *testing.T) {
	policy := domain.DefaultPolicy
	policy.ConsecutivePeriods = 2

	series := []*domain.RateObservation{
		// dai is best initially, usdc overtakes from the second period.
		obs(0, "dai", 10, 2), obs(0, "usdc", 6, 3),
		obs(24*hour, "dai", 6, 3), obs(24*hour, "usdc", 12, 2),
		obs(48*hour, "dai", 6, 3), obs(48*hour, "usdc", 12, 2),
	}
	periods, _ := runSim(t, series, testLoop, policy)

	if periods[0].State.SupplyAsset != "dai" {
		t.Fatalf("expected to open on dai, got %+v", periods[0].State)
	}
	if periods[1].Transition != TransitionHold {
		t.Errorf("period 1 should still hold: %v", periods[1].Transition)
	}

	row := periods[2]
	if row.Transition != TransitionRebalance {
		t.Fatalf("Transition = %v, want rebalance", row.Transition)
	}
	if row.Status != domain.StatusRebalancedBestPair {
		t.Errorf("Status = %v, want rebalanced_best_pair", row.Status)
	}
	if row.State.SupplyAsset != "usdc" || row.State.Spread != 10 {
		t.Errorf("unexpected switched state: %+v", row.State)
	}
}

func TestRun_ReleverFromSimple(t *testing.T) {
	policy := domain.DefaultPolicy
	policy.ConsecutivePeriods = 2

	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),        // open
		obs(24*hour, "usdc", 3, 4),   // run 1
		obs(48*hour, "usdc", 3, 4),   // run 2 -> delever
		obs(72*hour, "usdc", 9, 2),   // spread positive again, mismatch 1
		obs(96*hour, "usdc", 9, 2),   // mismatch 2 -> relever
	}
	periods, _ := runSim(t, series, testLoop, policy)

	if periods[2].Transition != TransitionDelever {
		t.Fatalf("period 2: transition %v, want delever", periods[2].Transition)
	}

	row := periods[4]
	if row.Transition != TransitionRelever {
		t.Fatalf("Transition = %v, want relever", row.Transition)
	}
	if row.State.Kind != LeveragedPosition || row.State.Spread != 7 {
		t.Errorf("unexpected relevered state: %+v", row.State)
	}
}

func TestRun_SupplySwitchWhileSimple(t *testing.T) {
	policy := domain.DefaultPolicy
	policy.ConsecutivePeriods = 2

	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2), obs(0, "dai", 1, 9),
		obs(24*hour, "usdc", 3, 4), obs(24*hour, "dai", 1, 9),  // run 1
		obs(48*hour, "usdc", 3, 4), obs(48*hour, "dai", 1, 9),  // run 2 -> delever
		obs(72*hour, "usdc", 2, 8), obs(72*hour, "dai", 5, 9),  // dai best supply, spread <= 0
		obs(96*hour, "usdc", 2, 8), obs(96*hour, "dai", 5, 9),  // -> supply switch
	}
	periods, _ := runSim(t, series, testLoop, policy)

	if periods[2].Transition != TransitionDelever {
		t.Fatalf("period 2: transition %v, want delever", periods[2].Transition)
	}

	row := periods[4]
	if row.Transition != TransitionSupplySwitch {
		t.Fatalf("Transition = %v, want supply_switch", row.Transition)
	}
	if row.State.Kind != SimplePosition || row.State.SupplyAsset != "dai" || row.State.SupplyAPY != 5 {
		t.Errorf("unexpected switched state: %+v", row.State)
	}
}

func TestRun_NoDataPeriodHolds(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),
		obs(24*hour, "usdc", 0, 0), // masked: no data this period
		obs(48*hour, "usdc", 10, 2),
	}
	periods, _ := runSim(t, series, testLoop, domain.DefaultPolicy)

	row := periods[1]
	if row.Transition != TransitionHold {
		t.Errorf("no-data period should hold, got %v", row.Transition)
	}
	if row.State.Kind != LeveragedPosition {
		t.Errorf("position should survive a no-data period: %+v", row.State)
	}
}

func TestRun_NoDataBreaksSuboptimalWindow(t *testing.T) {
	policy := domain.DefaultPolicy
	policy.ConsecutivePeriods = 2

	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),
		obs(24*hour, "usdc", 3, 4), // run 1
		obs(48*hour, "usdc", 0, 0), // no data: run resets
		obs(72*hour, "usdc", 3, 4), // run 1 again
		obs(96*hour, "usdc", 3, 4), // run 2 -> delever only here
	}
	periods, _ := runSim(t, series, testLoop, policy)

	if periods[3].Transition != TransitionHold {
		t.Errorf("period 3: transition %v, want hold", periods[3].Transition)
	}
	if periods[4].Transition != TransitionDelever {
		t.Errorf("period 4: transition %v, want delever", periods[4].Transition)
	}
}

func TestRun_ValueCompounding(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "usdc", 10, 2),
		obs(24*hour, "usdc", 10, 2),
		obs(48*hour, "usdc", 10, 2),
	}
	// LTV=0.5, stop=0.5: one loop, leverage 1.5.
	periods, _ := runSim(t, series, testLoop, domain.DefaultPolicy)

	if periods[0].Value != 100 {
		t.Fatalf("opening period elapses zero hours, value = %v, want 100", periods[0].Value)
	}

	// Annualized: 10 + 8*(1.5-1) = 14%, pro-rated over 24 of 8760 hours.
	step := 1 + 0.14*24/float64(hoursPerYear)
	want := 100 * step
	if math.Abs(periods[1].Value-want) > 1e-12 {
		t.Errorf("period 1 value = %v, want %v", periods[1].Value, want)
	}
	want *= step
	if math.Abs(periods[2].Value-want) > 1e-12 {
		t.Errorf("period 2 value = %v, want %v", periods[2].Value, want)
	}
}

func TestRun_Deterministic(t *testing.T) {
	series := []*domain.RateObservation{
		obs(0, "dai", 10, 2), obs(0, "usdc", 6, 3),
		obs(24*hour, "dai", 1, 16), obs(24*hour, "usdc", 2, 12),
		obs(48*hour, "dai", 10, 2), obs(48*hour, "usdc", 12, 2),
		obs(72*hour, "dai", 0, 0), obs(72*hour, "usdc", 0, 0),
		obs(96*hour, "dai", 3, 4), obs(96*hour, "usdc", 2, 5),
	}

	p1, e1 := runSim(t, series, testLoop, domain.DefaultPolicy)
	p2, e2 := runSim(t, series, testLoop, domain.DefaultPolicy)

	if !reflect.DeepEqual(p1, p2) {
		t.Error("periods differ between identical runs")
	}
	if !reflect.DeepEqual(e1, e2) {
		t.Error("events differ between identical runs")
	}
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	policy := domain.DefaultPolicy
	policy.ConsecutivePeriods = 0

	_, err := New(&normalization.RateTable{}, nil, &leverage.Plan{}, policy)
	if err == nil {
		t.Fatal("expected policy validation error")
	}
}
