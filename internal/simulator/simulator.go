// Package simulator walks a normalized rate series period by period,
// maintaining a single live position and applying the rebalance policy. It
// is strictly sequential: each period's state depends on the previous one.
package simulator

import (
	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/leverage"
	"lending-loop-lab/internal/normalization"
	"lending-loop-lab/internal/selection"
)

const hoursPerYear = 24 * 365

// Period is one step of simulator output: the post-transition state, the
// rule that fired and the compounded position value before costs.
type Period struct {
	Index          int
	Timestamp      int64
	HoursSincePrev float64

	State      State
	Transition TransitionKind
	Status     domain.RebalanceStatus

	// PeriodReturn is the pro-rated decimal return earned this period.
	PeriodReturn float64
	// Value is the compounded position value before any cost deduction.
	Value float64
}

// Simulator holds the immutable inputs of one run. A run is a pure function
// of (table, pairs, plan, policy); Run may be called repeatedly and always
// produces identical output.
type Simulator struct {
	table  *normalization.RateTable
	pairs  []*selection.BestPair
	plan   *leverage.Plan
	policy domain.PolicyConfig
}

// New validates the policy and builds a simulator over a normalized table
// and its precomputed per-row best pairs.
func New(table *normalization.RateTable, pairs []*selection.BestPair, plan *leverage.Plan, policy domain.PolicyConfig) (*Simulator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{table: table, pairs: pairs, plan: plan, policy: policy}, nil
}

// Run executes the sequential pass and returns one Period per table row plus
// a structured event for every non-hold transition.
func (s *Simulator) Run() ([]Period, []domain.RebalanceEvent, error) {
	n := s.table.NumRows()
	periods := make([]Period, 0, n)
	var events []domain.RebalanceEvent

	var state State
	var w window
	value := s.plan.InitialCollateral

	for i := 0; i < n; i++ {
		pair := s.pairs[i]
		ts := s.table.Timestamps[i]

		updateWindow(&w, state, pair)
		next, kind := transition(state, pair, w, s.policy, ts)
		if kind != TransitionHold {
			events = append(events, newEvent(state, next, kind, pair, ts))
			w.reset()
		}
		state = next

		hours := s.table.HoursSince(i)
		ret := periodReturn(state, s.plan.Leverage) * hours / hoursPerYear
		value *= 1 + ret

		periods = append(periods, Period{
			Index:          i,
			Timestamp:      ts,
			HoursSincePrev: hours,
			State:          state,
			Transition:     kind,
			Status:         statusFor(kind),
			PeriodReturn:   ret,
			Value:          value,
		})
	}

	return periods, events, nil
}

// updateWindow advances the consecutive-period counters with the current
// observation. A no-data period breaks every run: nothing was observed, so
// nothing counts as suboptimal or mismatched.
func updateWindow(w *window, state State, pair *selection.BestPair) {
	if pair == nil {
		w.reset()
		return
	}

	if pair.Spread <= 0 {
		w.nonPositive++
	} else {
		w.nonPositive = 0
	}

	switch state.Kind {
	case LeveragedPosition:
		if state.SupplyAsset != pair.SupplyAsset || state.BorrowAsset != pair.BorrowAsset {
			w.pairMismatch++
		} else {
			w.pairMismatch = 0
		}
		w.supplyMismatch = 0
	case SimplePosition:
		// A supply-only position never matches a two-legged best pair.
		w.pairMismatch++
		if state.SupplyAsset != pair.SupplyAsset {
			w.supplyMismatch++
		} else {
			w.supplyMismatch = 0
		}
	default:
		w.pairMismatch = 0
		w.supplyMismatch = 0
	}
}

// transition applies exactly one rule per period. Precedence for a leveraged
// position: negative-spread exit, then persistent-suboptimal delever, then
// best-pair switch, then hold. No-data periods always hold.
func transition(prev State, pair *selection.BestPair, w window, policy domain.PolicyConfig, ts int64) (State, TransitionKind) {
	if pair == nil {
		return prev, TransitionHold
	}

	switch prev.Kind {
	case NoPosition:
		if pair.Spread > 0 {
			return leveredState(pair, ts), TransitionOpen
		}

	case LeveragedPosition:
		if pair.Spread < policy.NegativeSpreadThreshold {
			return State{OpenedAt: ts}, TransitionNegativeClose
		}
		if w.nonPositive >= policy.ConsecutivePeriods {
			return State{
				Kind:        SimplePosition,
				SupplyAsset: prev.SupplyAsset,
				SupplyAPY:   prev.SupplyAPY,
				OpenedAt:    ts,
			}, TransitionDelever
		}
		if w.pairMismatch >= policy.ConsecutivePeriods && pair.Spread > 0 {
			return leveredState(pair, ts), TransitionRebalance
		}

	case SimplePosition:
		if w.pairMismatch >= policy.ConsecutivePeriods && pair.Spread > 0 {
			return leveredState(pair, ts), TransitionRelever
		}
		if w.supplyMismatch >= policy.ConsecutivePeriods && pair.SupplyAsset != prev.SupplyAsset {
			return State{
				Kind:        SimplePosition,
				SupplyAsset: pair.SupplyAsset,
				SupplyAPY:   pair.SupplyAPY,
				OpenedAt:    ts,
			}, TransitionSupplySwitch
		}
	}

	return prev, TransitionHold
}

func leveredState(pair *selection.BestPair, ts int64) State {
	return State{
		Kind:        LeveragedPosition,
		SupplyAsset: pair.SupplyAsset,
		BorrowAsset: pair.BorrowAsset,
		Spread:      pair.Spread,
		SupplyAPY:   pair.SupplyAPY,
		OpenedAt:    ts,
	}
}

// periodReturn is the annualized decimal return of the post-transition state.
// Rates are decimal percentages, hence the /100.
func periodReturn(state State, lev float64) float64 {
	switch state.Kind {
	case LeveragedPosition:
		return (state.SupplyAPY + state.Spread*(lev-1)) / 100
	case SimplePosition:
		return state.SupplyAPY / 100
	default:
		return 0
	}
}

// statusFor maps a transition kind onto the coarse row status.
func statusFor(kind TransitionKind) domain.RebalanceStatus {
	switch kind {
	case TransitionNegativeClose, TransitionDelever:
		return domain.StatusRebalancedNegative
	case TransitionOpen, TransitionRelever, TransitionRebalance, TransitionSupplySwitch:
		return domain.StatusRebalancedBestPair
	default:
		return domain.StatusNoRebalance
	}
}

func newEvent(prev, next State, kind TransitionKind, pair *selection.BestPair, ts int64) domain.RebalanceEvent {
	ev := domain.RebalanceEvent{
		Timestamp:  ts,
		Kind:       string(kind),
		FromSupply: prev.SupplyAsset,
		FromBorrow: prev.BorrowAsset,
		ToSupply:   next.SupplyAsset,
		ToBorrow:   next.BorrowAsset,
	}
	if pair != nil {
		ev.Spread = pair.Spread
	}
	return ev
}
