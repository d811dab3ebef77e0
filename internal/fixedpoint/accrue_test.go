package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"lending-loop-lab/internal/domain"
)

func makeMarket(supplyAssets, supplyShares, borrowAssets, borrowShares uint64, lastUpdate uint64, fee *uint256.Int) *domain.MarketState {
	if fee == nil {
		fee = uint256.NewInt(0)
	}
	return &domain.MarketState{
		MarketID:          "test-market",
		TotalSupplyAssets: uint256.NewInt(supplyAssets),
		TotalSupplyShares: uint256.NewInt(supplyShares),
		TotalBorrowAssets: uint256.NewInt(borrowAssets),
		TotalBorrowShares: uint256.NewInt(borrowShares),
		LastUpdate:        lastUpdate,
		Fee:               fee,
	}
}

func TestAccrueInterest_NoDebtOnlyAdvancesClock(t *testing.T) {
	m := makeMarket(1_000_000, 1_000_000, 0, 0, 1000, nil)
	rate := uint256.NewInt(1_000_000_000)

	next, err := AccrueInterest(2000, m, rate)
	if err != nil {
		t.Fatalf("AccrueInterest failed: %v", err)
	}

	if next.LastUpdate != 2000 {
		t.Errorf("LastUpdate = %d, want 2000", next.LastUpdate)
	}
	if !next.TotalSupplyAssets.Eq(m.TotalSupplyAssets) ||
		!next.TotalSupplyShares.Eq(m.TotalSupplyShares) ||
		!next.TotalBorrowAssets.Eq(m.TotalBorrowAssets) ||
		!next.TotalBorrowShares.Eq(m.TotalBorrowShares) {
		t.Errorf("totals changed on a debt-free market: %+v", next)
	}
}

func TestAccrueInterest_SameTimestampIsIdempotent(t *testing.T) {
	m := makeMarket(2_000_000, 1_900_000, 1_000_000, 950_000, 1000, nil)
	rate := uint256.NewInt(50_000_000_000) // 5e10 per second

	once, err := AccrueInterest(5000, m, rate)
	if err != nil {
		t.Fatalf("first accrual failed: %v", err)
	}
	twice, err := AccrueInterest(5000, once, rate)
	if err != nil {
		t.Fatalf("second accrual failed: %v", err)
	}

	if !twice.TotalSupplyAssets.Eq(once.TotalSupplyAssets) ||
		!twice.TotalSupplyShares.Eq(once.TotalSupplyShares) ||
		!twice.TotalBorrowAssets.Eq(once.TotalBorrowAssets) ||
		!twice.TotalBorrowShares.Eq(once.TotalBorrowShares) ||
		twice.LastUpdate != once.LastUpdate {
		t.Errorf("second accrual at the same timestamp changed state:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestAccrueInterest_RejectsRegressingTimestamp(t *testing.T) {
	m := makeMarket(2_000_000, 1_900_000, 1_000_000, 950_000, 5000, nil)
	rate := uint256.NewInt(50_000_000_000)

	_, err := AccrueInterest(4999, m, rate)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for a regressing timestamp, got %v", err)
	}
}

func TestAccrueInterest_AddsInterestToBothSides(t *testing.T) {
	m := makeMarket(2_000_000, 2_000_000, 1_000_000, 1_000_000, 0, nil)
	// rate*elapsed = 1e15 * 1000 = 1e18 = WAD, so compounded ~ 1.6667 and
	// interest = floor(1e6 * 1.666..6) on WAD scale.
	rate := new(uint256.Int).Div(WAD, uint256.NewInt(1000))

	next, err := AccrueInterest(1000, m, rate)
	if err != nil {
		t.Fatalf("AccrueInterest failed: %v", err)
	}

	supplyGrowth := new(uint256.Int).Sub(next.TotalSupplyAssets, m.TotalSupplyAssets)
	borrowGrowth := new(uint256.Int).Sub(next.TotalBorrowAssets, m.TotalBorrowAssets)
	if !supplyGrowth.Eq(borrowGrowth) {
		t.Errorf("interest differs between sides: supply +%s, borrow +%s", supplyGrowth, borrowGrowth)
	}
	if supplyGrowth.IsZero() {
		t.Error("expected non-zero interest")
	}
	// x + x^2/2 + x^3/6 at x=1 gives 1666666666666666666 WAD; on 1e6 assets
	// that is 1666666 after rounding down.
	if supplyGrowth.Uint64() != 1_666_666 {
		t.Errorf("interest = %s, want 1666666", supplyGrowth)
	}
	if !next.TotalSupplyShares.Eq(m.TotalSupplyShares) {
		t.Errorf("fee-less market minted shares: %s", next.TotalSupplyShares)
	}
}

func TestAccrueInterest_FeeMintsShares(t *testing.T) {
	fee := new(uint256.Int).Div(WAD, uint256.NewInt(10)) // 10%
	m := makeMarket(2_000_000, 2_000_000, 1_000_000, 1_000_000, 0, fee)
	rate := new(uint256.Int).Div(WAD, uint256.NewInt(1000))

	next, err := AccrueInterest(1000, m, rate)
	if err != nil {
		t.Fatalf("AccrueInterest failed: %v", err)
	}

	if !next.TotalSupplyShares.Gt(m.TotalSupplyShares) {
		t.Errorf("fee market minted no shares: %s", next.TotalSupplyShares)
	}

	// interest = 1666666, feeAmount = 166666; shares priced against the
	// pre-fee supply base.
	feeAmount := uint256.NewInt(166_666)
	base := new(uint256.Int).Sub(next.TotalSupplyAssets, feeAmount)
	wantShares, err := ToSharesDown(feeAmount, base, m.TotalSupplyShares)
	if err != nil {
		t.Fatalf("ToSharesDown failed: %v", err)
	}
	minted := new(uint256.Int).Sub(next.TotalSupplyShares, m.TotalSupplyShares)
	if !minted.Eq(wantShares) {
		t.Errorf("minted %s fee shares, want %s", minted, wantShares)
	}
}

func TestAccrueInterest_InputUntouched(t *testing.T) {
	m := makeMarket(2_000_000, 2_000_000, 1_000_000, 1_000_000, 0, nil)
	rate := uint256.NewInt(1_000_000_000)

	if _, err := AccrueInterest(1000, m, rate); err != nil {
		t.Fatalf("AccrueInterest failed: %v", err)
	}

	if m.TotalSupplyAssets.Uint64() != 2_000_000 || m.LastUpdate != 0 {
		t.Errorf("input state mutated: %+v", m)
	}
}
