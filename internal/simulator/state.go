package simulator

// PositionKind identifies the position held at the end of a period.
type PositionKind int

// Position kinds.
const (
	// NoPosition means no capital is deployed.
	NoPosition PositionKind = iota
	// SimplePosition is a supply-only position, the result of delevering.
	SimplePosition
	// LeveragedPosition carries both a supply and a borrow leg.
	LeveragedPosition
)

// String returns the kind name for events and logs.
func (k PositionKind) String() string {
	switch k {
	case SimplePosition:
		return "simple"
	case LeveragedPosition:
		return "leveraged"
	default:
		return "none"
	}
}

// TransitionKind tags the rule that fired when the simulator moved between
// states. The cost accountant keys its tariffs off this tag.
type TransitionKind string

// Transition kinds, in precedence order for a leveraged position.
const (
	// TransitionNegativeClose is the circuit breaker: the current spread
	// fell below the hard negative threshold and the whole position was
	// force-closed.
	TransitionNegativeClose TransitionKind = "negative_close"

	// TransitionDelever drops the borrow leg after a persistent run of
	// non-positive spreads, keeping the supply leg.
	TransitionDelever TransitionKind = "delever"

	// TransitionRebalance unwinds and reopens a leveraged position on the
	// period's best pair.
	TransitionRebalance TransitionKind = "rebalance"

	// TransitionOpen opens a leveraged position from no position.
	TransitionOpen TransitionKind = "open"

	// TransitionRelever re-levers a supply-only position into a leveraged
	// one on the period's best pair. Same mechanics as an open.
	TransitionRelever TransitionKind = "relever"

	// TransitionSupplySwitch moves a supply-only position to a better
	// supply asset without taking on debt.
	TransitionSupplySwitch TransitionKind = "supply_switch"

	// TransitionHold leaves the previous state untouched.
	TransitionHold TransitionKind = "hold"
)

// State is the simulator position at the end of one period. The zero value
// is the no-position state.
type State struct {
	Kind        PositionKind
	SupplyAsset string  // empty when Kind is NoPosition
	BorrowAsset string  // empty unless Kind is LeveragedPosition
	Spread      float64 // spread locked at the last transition; 0 without a borrow leg
	SupplyAPY   float64 // supply rate locked at the last transition
	OpenedAt    int64   // timestamp of the transition that produced this state
}

// window tracks the consecutive-period counters the delever and switch rules
// inspect. Counters include the current period and reset whenever any
// non-hold transition fires.
type window struct {
	nonPositive    int // consecutive periods with best spread <= 0
	pairMismatch   int // consecutive periods where held pair != best pair
	supplyMismatch int // consecutive periods where held supply asset != best supply
}

func (w *window) reset() { *w = window{} }
