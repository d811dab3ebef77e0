package fixedpoint

import (
	"math"

	"github.com/holiman/uint256"
)

// Float conversions for human-readable output. These are the only places the
// package leaves integer arithmetic; all accrual math stays in WAD integers.

// APYFromRatePerSecond converts a per-second WAD-scaled interest rate into an
// exact compounded APY percentage: ((1+r)^secondsPerYear - 1) * 100.
func APYFromRatePerSecond(rate *uint256.Int) float64 {
	r := WADToFloat(rate)
	return (math.Pow(1+r, SecondsPerYear) - 1) * 100
}

// TaylorAPY converts a per-second WAD-scaled rate into the percentage yield
// the protocol's own 3-term approximation would accrue over one year.
func TaylorAPY(rate *uint256.Int) (float64, error) {
	compounded, err := TaylorCompounded(rate, SecondsPerYear)
	if err != nil {
		return 0, err
	}
	return WADToFloat(compounded) * 100, nil
}

// WADToFloat converts a WAD-scaled integer to its float value.
func WADToFloat(x *uint256.Int) float64 {
	f := new(uint256.Int).Set(x).Float64()
	return f / 1e18
}

// RatePerSecondFromAPY converts a compounded APY percentage into the
// per-second WAD-scaled rate, the inverse of APYFromRatePerSecond.
// Negative APYs map to a zero rate.
func RatePerSecondFromAPY(apy float64) *uint256.Int {
	if apy <= 0 {
		return uint256.NewInt(0)
	}
	r := math.Pow(1+apy/100, 1.0/SecondsPerYear) - 1
	return uint256.NewInt(uint64(r * 1e18))
}
