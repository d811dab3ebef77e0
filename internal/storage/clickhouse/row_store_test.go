package clickhouse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

func testRow(runID string, ts int64) *domain.BacktestRow {
	return &domain.BacktestRow{
		RunID:          runID,
		Timestamp:      ts,
		HoursSincePrev: 24,

		SupplyAsset: "usdc",
		BorrowAsset: "dai",
		Spread:      8,

		Status:    domain.StatusNoRebalance,
		TxCount:   0,
		SwapCount: 0,

		PositionValue:           101.5,
		PositionValueAfterCosts: 101.2,

		CumulativeTxCount:   6,
		CumulativeSwapCount: 1,
		CumulativeCost:      0.3,
	}
}

func TestBacktestRowStore_InsertBulkAndGetByRunID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()

	rows := []*domain.BacktestRow{
		testRow("run1", 3000),
		testRow("run1", 1000),
		testRow("run2", 2000),
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1000), got[0].Timestamp)
	require.Equal(t, int64(3000), got[1].Timestamp)

	// Full round-trip fidelity
	want := testRow("run1", 1000)
	require.Equal(t, want, got[0])
}

func TestBacktestRowStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.BacktestRow{testRow("run1", 1000)}))

	err := store.InsertBulk(ctx, []*domain.BacktestRow{testRow("run1", 1000)})
	require.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)
}

func TestBacktestRowStore_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.BacktestRow{
		testRow("run1", 1000),
		testRow("run1", 1000),
	})
	require.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Empty(t, got, "failed batch must not insert anything")
}

func TestBacktestRowStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.BacktestRow{
		testRow("run1", 1000),
		testRow("run1", 2000),
		testRow("run1", 3000),
		testRow("run2", 2000),
	}))

	got, err := store.GetByTimeRange(ctx, "run1", 1500, 2500)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(2000), got[0].Timestamp)
}

func TestBacktestRowStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)

	err := store.InsertBulk(context.Background(), []*domain.BacktestRow{{Timestamp: 1000}})
	require.True(t, errors.Is(err, storage.ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
}
