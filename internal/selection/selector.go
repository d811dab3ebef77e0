// Package selection scans the normalized rate table for the best
// supply/borrow asset pair of each period.
package selection

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"lending-loop-lab/internal/normalization"
)

// BestPair is the optimal supply/borrow choice of one period.
type BestPair struct {
	SupplyAsset string
	BorrowAsset string
	SupplyAPY   float64
	BorrowAPY   float64
	Spread      float64 // SupplyAPY - BorrowAPY
}

// PairAt selects the best pair for one table row: the available asset with
// the maximum supply rate and the available asset with the minimum borrow
// rate. Ties resolve to the first asset in canonical order, keeping runs
// reproducible. Returns nil when no asset is available ("no data", not zero).
func PairAt(table *normalization.RateTable, row int) *BestPair {
	bestSupply, bestBorrow := -1, -1
	for col := range table.Assets {
		if !table.Available[row][col] {
			continue
		}
		if bestSupply == -1 || table.Supply[row][col] > table.Supply[row][bestSupply] {
			bestSupply = col
		}
		if bestBorrow == -1 || table.Borrow[row][col] < table.Borrow[row][bestBorrow] {
			bestBorrow = col
		}
	}
	if bestSupply == -1 {
		return nil
	}

	supplyAPY := table.Supply[row][bestSupply]
	borrowAPY := table.Borrow[row][bestBorrow]
	return &BestPair{
		SupplyAsset: table.Assets[bestSupply],
		BorrowAsset: table.Assets[bestBorrow],
		SupplyAPY:   supplyAPY,
		BorrowAPY:   borrowAPY,
		Spread:      supplyAPY - borrowAPY,
	}
}

// Pairs computes the best pair for every row. Rows are independent, so the
// scan fans out over a bounded worker group ahead of the sequential
// simulator pass; the result order is positional and deterministic.
func Pairs(ctx context.Context, table *normalization.RateTable) ([]*BestPair, error) {
	n := table.NumRows()
	pairs := make([]*BestPair, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for row := 0; row < n; row++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pairs[row] = PairAt(table, row)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}
