package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"

	"lending-loop-lab/internal/domain"
)

// AccrueInterest advances a market state to lastBlockTimestamp under the given
// per-second WAD-scaled borrow rate. It is pure: the input state is never
// mutated and the returned state is a fresh copy.
//
// When no time has elapsed the state is returned unchanged; a timestamp
// before LastUpdate is rejected with ErrInvalidParameter. When the market
// carries no debt only LastUpdate advances. Otherwise the Taylor-compounded
// interest is added to both supply and borrow totals, and fee shares are
// minted into the supply shares when the market takes a fee.
func AccrueInterest(lastBlockTimestamp uint64, m *domain.MarketState, borrowRate *uint256.Int) (*domain.MarketState, error) {
	if lastBlockTimestamp == m.LastUpdate {
		return m.Clone(), nil
	}
	if lastBlockTimestamp < m.LastUpdate {
		return nil, fmt.Errorf("%w: timestamp %d before last update %d", domain.ErrInvalidParameter, lastBlockTimestamp, m.LastUpdate)
	}
	elapsed := lastBlockTimestamp - m.LastUpdate

	next := m.Clone()
	next.LastUpdate = lastBlockTimestamp

	if m.TotalBorrowAssets.IsZero() {
		return next, nil
	}

	compounded, err := TaylorCompounded(borrowRate, elapsed)
	if err != nil {
		return nil, err
	}
	interest, err := WMulDown(m.TotalBorrowAssets, compounded)
	if err != nil {
		return nil, err
	}

	next.TotalSupplyAssets.Add(next.TotalSupplyAssets, interest)
	next.TotalBorrowAssets.Add(next.TotalBorrowAssets, interest)

	if !m.Fee.IsZero() {
		feeAmount, err := WMulDown(interest, m.Fee)
		if err != nil {
			return nil, err
		}
		// The fee amount is removed from the supply-asset base before
		// converting, so fee shares are priced as if minted pre-fee.
		base := new(uint256.Int).Sub(next.TotalSupplyAssets, feeAmount)
		feeShares, err := ToSharesDown(feeAmount, base, next.TotalSupplyShares)
		if err != nil {
			return nil, err
		}
		next.TotalSupplyShares.Add(next.TotalSupplyShares, feeShares)
	}

	return next, nil
}
