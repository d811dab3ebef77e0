package fixedpoint

import "github.com/holiman/uint256"

// Share/asset conversion with virtual offsets. The offsets make every
// denominator structurally non-zero, so division-by-zero is impossible here;
// errors can only arise from 256-bit overflow.
//
// Rounding follows the suffix: Down truncates, Up ceils. For any non-negative
// inputs, toAssetsDown(toSharesDown(a)) <= a and the Up variants satisfy >= a.

// ToSharesDown converts assets to shares, rounding down.
func ToSharesDown(assets, totalAssets, totalShares *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(assets,
		new(uint256.Int).Add(totalShares, VirtualShares),
		new(uint256.Int).Add(totalAssets, VirtualAssets))
}

// ToSharesUp converts assets to shares, rounding up.
func ToSharesUp(assets, totalAssets, totalShares *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(assets,
		new(uint256.Int).Add(totalShares, VirtualShares),
		new(uint256.Int).Add(totalAssets, VirtualAssets))
}

// ToAssetsDown converts shares to assets, rounding down.
func ToAssetsDown(shares, totalAssets, totalShares *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(shares,
		new(uint256.Int).Add(totalAssets, VirtualAssets),
		new(uint256.Int).Add(totalShares, VirtualShares))
}

// ToAssetsUp converts shares to assets, rounding up.
func ToAssetsUp(shares, totalAssets, totalShares *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(shares,
		new(uint256.Int).Add(totalAssets, VirtualAssets),
		new(uint256.Int).Add(totalShares, VirtualShares))
}
