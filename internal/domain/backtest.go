package domain

// RebalanceStatus tags the rule that fired for a backtest period.
type RebalanceStatus string

// Rebalance status constants.
const (
	StatusNoRebalance        RebalanceStatus = "no_rebalance"
	StatusRebalancedNegative RebalanceStatus = "rebalanced_negative"
	StatusRebalancedBestPair RebalanceStatus = "rebalanced_best_pair"
)

// BacktestRow is one period of backtest output.
// Corresponds to backtest_rows table in ClickHouse. Carried-forward fields
// (asset pair, cumulative counters) derive deterministically from the
// previous row plus the rebalance decision taken this period.
type BacktestRow struct {
	RunID     string
	Timestamp int64   // Unix timestamp in seconds
	HoursSincePrev float64

	SupplyAsset string // empty when no position
	BorrowAsset string // empty when no borrow leg
	Spread      float64

	Status    RebalanceStatus
	TxCount   int
	SwapCount int

	PositionValue           float64
	PositionValueAfterCosts float64

	CumulativeTxCount   int
	CumulativeSwapCount int
	CumulativeCost      float64
}

// BacktestRun records one backtest execution and its derived scalars.
// Corresponds to backtest_runs table in PostgreSQL.
type BacktestRun struct {
	RunID     string // deterministic hash of inputs
	CreatedAt int64  // Unix timestamp in seconds

	// Loop sizing
	LTV               float64
	StopCondition     float64
	InitialCollateral float64
	Loops             int
	Leverage          float64

	// Rebalance policy
	NegativeSpreadThreshold float64
	ConsecutivePeriods      int
	TxCostUSD               float64
	SwapFeePct              float64

	// Outcome
	PeriodCount          int
	FinalValue           float64
	FinalValueAfterCosts float64
}

// RebalanceEvent is one structured event emitted by the simulator for every
// non-hold transition, in lieu of ambient logging.
type RebalanceEvent struct {
	Timestamp   int64
	Kind        string // transition kind, e.g. "open", "negative_close"
	FromSupply  string
	FromBorrow  string
	ToSupply    string
	ToBorrow    string
	Spread      float64
	TxCount     int
	SwapCount   int
}
