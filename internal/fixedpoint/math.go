// Package fixedpoint replicates the lending protocol's integer fixed-point
// arithmetic: WAD/RAY scaling, compounded-rate approximation and share/asset
// conversion with virtual offsets. No floating point is used except at the
// human-readable percentage boundary (apy.go).
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Fixed-point scales and conversion offsets.
var (
	// WAD is the 10^18 scale used for rates and shares.
	WAD = uint256.NewInt(1_000_000_000_000_000_000)

	// RAY is the 10^27 scale used for protocol-level indices.
	RAY = new(uint256.Int).Mul(WAD, uint256.NewInt(1_000_000_000))

	// VirtualShares and VirtualAssets are added to share/asset totals before
	// taking ratios, preventing division by zero and share-price manipulation
	// at low liquidity.
	VirtualShares = uint256.NewInt(1_000_000)
	VirtualAssets = uint256.NewInt(1)
)

// SecondsPerYear is the accrual year length used by rate conversions.
const SecondsPerYear = 365 * 24 * 3600

// Arithmetic errors. Both are local and fatal to a run.
var (
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrOverflow       = errors.New("fixedpoint: result exceeds 256 bits")
)

// MulDivDown returns floor(x * y / d) using a 512-bit intermediate product.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp returns ceil(x * y / d) using a 512-bit intermediate product.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDivDown(x, y, d)
	if err != nil {
		return nil, err
	}
	rem := new(uint256.Int).MulMod(x, y, d)
	if rem.IsZero() {
		return z, nil
	}
	z, carry := new(uint256.Int).AddOverflow(z, uint256.NewInt(1))
	if carry {
		return nil, ErrOverflow
	}
	return z, nil
}

// WMulDown returns floor(x * y / WAD).
func WMulDown(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(x, y, WAD)
}

// WDivDown returns floor(x * WAD / y).
func WDivDown(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(x, WAD, y)
}

// WDivUp returns ceil(x * WAD / y).
func WDivUp(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(x, WAD, y)
}

// TaylorCompounded approximates (1+rate)^elapsed - 1 in WAD fixed point with
// a 3-term Taylor expansion, rounding down at each multiply-divide. The
// bounded error of the approximation is accepted by design of the source
// protocol; callers must not expect the exact compound value.
func TaylorCompounded(rate *uint256.Int, elapsed uint64) (*uint256.Int, error) {
	firstTerm := new(uint256.Int).Mul(rate, uint256.NewInt(elapsed))

	twoWAD := new(uint256.Int).Add(WAD, WAD)
	secondTerm, err := MulDivDown(firstTerm, firstTerm, twoWAD)
	if err != nil {
		return nil, err
	}

	threeWAD := new(uint256.Int).Add(twoWAD, WAD)
	thirdTerm, err := MulDivDown(secondTerm, firstTerm, threeWAD)
	if err != nil {
		return nil, err
	}

	sum := new(uint256.Int).Add(firstTerm, secondTerm)
	return sum.Add(sum, thirdTerm), nil
}
