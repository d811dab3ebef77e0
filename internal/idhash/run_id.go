package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lending-loop-lab/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256 over the inputs
// that fully determine a backtest run: the series bounds and size, the loop
// sizing and the rebalance policy.
// Formula: SHA256(first_ts|last_ts|count|ltv|stop|collateral|threshold|periods|tx_cost|swap_fee)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	firstTimestamp int64,
	lastTimestamp int64,
	observationCount int,
	loop domain.LoopConfig,
	policy domain.PolicyConfig,
) string {
	data := fmt.Sprintf("%d|%d|%d|%g|%g|%g|%g|%d|%g|%g",
		firstTimestamp,
		lastTimestamp,
		observationCount,
		loop.LTV,
		loop.StopCondition,
		loop.InitialCollateral,
		policy.NegativeSpreadThreshold,
		policy.ConsecutivePeriods,
		policy.TxCostUSD,
		policy.SwapFeePct,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
