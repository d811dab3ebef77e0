package domain

import "github.com/holiman/uint256"

// MarketState is the protocol-level accrual state of one lending market.
// All monetary totals are WAD-scaled unsigned integers; Fee is a WAD-scaled
// fraction. Corresponds to market_states table in PostgreSQL.
type MarketState struct {
	MarketID          string // market identifier, e.g. the hex market key
	TotalSupplyAssets *uint256.Int
	TotalSupplyShares *uint256.Int
	TotalBorrowAssets *uint256.Int
	TotalBorrowShares *uint256.Int
	LastUpdate        uint64 // Unix timestamp in seconds
	Fee               *uint256.Int
}

// Clone returns a deep copy of the market state.
func (m *MarketState) Clone() *MarketState {
	return &MarketState{
		MarketID:          m.MarketID,
		TotalSupplyAssets: new(uint256.Int).Set(m.TotalSupplyAssets),
		TotalSupplyShares: new(uint256.Int).Set(m.TotalSupplyShares),
		TotalBorrowAssets: new(uint256.Int).Set(m.TotalBorrowAssets),
		TotalBorrowShares: new(uint256.Int).Set(m.TotalBorrowShares),
		LastUpdate:        m.LastUpdate,
		Fee:               new(uint256.Int).Set(m.Fee),
	}
}
