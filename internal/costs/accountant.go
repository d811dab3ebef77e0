// Package costs converts simulator transitions into transaction counts,
// swap volume and cumulative cost.
package costs

import (
	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/simulator"
)

// Charge is the cost outcome of one period: the period's own counts plus the
// running totals after applying them. Cumulative fields never decrease.
type Charge struct {
	TxCount    int
	SwapCount  int
	SwapVolume float64
	Cost       float64

	CumulativeTxCount   int
	CumulativeSwapCount int
	CumulativeCost      float64
}

// Accountant accumulates the cost series of one backtest run. Not safe for
// concurrent use; a run owns its accountant.
type Accountant struct {
	policy   domain.PolicyConfig
	loops    int
	leverage float64

	cumTx   int
	cumSwap int
	cumCost float64
}

// NewAccountant builds an accountant for a run with the given loop sizing.
func NewAccountant(policy domain.PolicyConfig, loops int, leverage float64) *Accountant {
	return &Accountant{policy: policy, loops: loops, leverage: leverage}
}

// Apply charges the transition taken this period against the position value
// it moved. Swap volume scales with the leveraged collateral except for a
// supply-only asset switch, which only moves the position value itself.
func (a *Accountant) Apply(kind simulator.TransitionKind, value float64) Charge {
	var txs, swaps int
	var volume float64

	switch kind {
	case simulator.TransitionRebalance:
		// Full unwind plus reopen: every loop is repaid and re-entered.
		txs = 4 * a.loops
		swaps = 2
		volume = 2 * value * a.leverage
	case simulator.TransitionDelever:
		// Unwind each loop, then one final withdraw/resupply.
		txs = 2*a.loops + 2
		swaps = 1
		volume = value * a.leverage
	case simulator.TransitionOpen, simulator.TransitionRelever:
		txs = 2 * a.loops
		swaps = 1
		volume = value * a.leverage
	case simulator.TransitionNegativeClose:
		// Same mechanics as the unwind half of a full rebalance.
		txs = 2 * a.loops
		swaps = 1
		volume = value * a.leverage
	case simulator.TransitionSupplySwitch:
		txs = 2
		swaps = 1
		volume = value
	}

	cost := float64(txs)*a.policy.TxCostUSD + volume*a.policy.SwapFeePct/100

	a.cumTx += txs
	a.cumSwap += swaps
	a.cumCost += cost

	return Charge{
		TxCount:             txs,
		SwapCount:           swaps,
		SwapVolume:          volume,
		Cost:                cost,
		CumulativeTxCount:   a.cumTx,
		CumulativeSwapCount: a.cumSwap,
		CumulativeCost:      a.cumCost,
	}
}

// Totals returns the running totals without applying a new charge.
func (a *Accountant) Totals() (txCount, swapCount int, cost float64) {
	return a.cumTx, a.cumSwap, a.cumCost
}
