package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter indicates an out-of-range loop or policy parameter.
// Validation fails fast before any simulation begins.
var ErrInvalidParameter = errors.New("invalid parameter")

// LoopConfig sizes the recursive borrow/supply loop.
type LoopConfig struct {
	LTV               float64 // loan-to-value ratio, in (0, 1)
	StopCondition     float64 // minimum marginal collateral fraction, in (0, 1]
	InitialCollateral float64 // starting collateral in currency units, > 0
}

// Validate checks the loop parameters.
func (c LoopConfig) Validate() error {
	if c.LTV <= 0 || c.LTV >= 1 {
		return fmt.Errorf("%w: LTV must be in (0, 1), got %v", ErrInvalidParameter, c.LTV)
	}
	if c.StopCondition <= 0 || c.StopCondition > 1 {
		return fmt.Errorf("%w: stop condition must be in (0, 1], got %v", ErrInvalidParameter, c.StopCondition)
	}
	if c.InitialCollateral <= 0 {
		return fmt.Errorf("%w: initial collateral must be positive, got %v", ErrInvalidParameter, c.InitialCollateral)
	}
	return nil
}

// PolicyConfig holds the rebalance policy and cost parameters.
type PolicyConfig struct {
	// NegativeSpreadThreshold is the hard circuit breaker, in percentage
	// points. A leveraged position is force-closed when the period's best
	// spread falls below it.
	NegativeSpreadThreshold float64

	// ConsecutivePeriods is the lookback window for the persistent-suboptimal
	// and best-pair-switch rules. Must be >= 1.
	ConsecutivePeriods int

	// TxCostUSD is the fixed cost per transaction.
	TxCostUSD float64

	// SwapFeePct is the swap fee as a decimal percentage of swap volume.
	// Zero is valid for fee-less venues.
	SwapFeePct float64
}

// DefaultPolicy mirrors the reference behavior: a -10 percentage point
// circuit breaker, a 3-period lookback and a conservative L2 gas cost.
var DefaultPolicy = PolicyConfig{
	NegativeSpreadThreshold: -10,
	ConsecutivePeriods:      3,
	TxCostUSD:               0.05,
	SwapFeePct:              0,
}

// Validate checks the policy parameters.
func (p PolicyConfig) Validate() error {
	if p.ConsecutivePeriods < 1 {
		return fmt.Errorf("%w: consecutive periods must be >= 1, got %d", ErrInvalidParameter, p.ConsecutivePeriods)
	}
	if p.TxCostUSD < 0 {
		return fmt.Errorf("%w: tx cost must be non-negative, got %v", ErrInvalidParameter, p.TxCostUSD)
	}
	if p.SwapFeePct < 0 {
		return fmt.Errorf("%w: swap fee must be non-negative, got %v", ErrInvalidParameter, p.SwapFeePct)
	}
	return nil
}
