package domain

// RateObservation is one supply/borrow rate sample for a single asset.
// Corresponds to rate_observations table in ClickHouse.
type RateObservation struct {
	Timestamp int64   // Unix timestamp in seconds
	Asset     string  // asset identifier, e.g. "aave_arb_usdc"
	SupplyAPY float64 // supply APY as a decimal percentage
	BorrowAPY float64 // borrow APY as a decimal percentage
}

// Key returns the uniqueness key (asset, timestamp) as used by stores.
type ObservationKey struct {
	Asset     string
	Timestamp int64
}

// Key returns the store uniqueness key for the observation.
func (o *RateObservation) Key() ObservationKey {
	return ObservationKey{Asset: o.Asset, Timestamp: o.Timestamp}
}
