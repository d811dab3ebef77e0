package memory

import (
	"context"
	"errors"
	"testing"

	"lending-loop-lab/internal/domain"
	"lending-loop-lab/internal/storage"
)

func TestBacktestRowStore_InsertBulkAndGetByRunID(t *testing.T) {
	store := NewBacktestRowStore()
	ctx := context.Background()

	rows := []*domain.BacktestRow{
		{RunID: "run1", Timestamp: 3000, Status: domain.StatusNoRebalance, PositionValue: 102},
		{RunID: "run1", Timestamp: 1000, Status: domain.StatusRebalancedBestPair, PositionValue: 100},
		{RunID: "run2", Timestamp: 2000, Status: domain.StatusNoRebalance, PositionValue: 100},
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Timestamp != 1000 || got[1].Timestamp != 3000 {
		t.Errorf("wrong order: %d, %d", got[0].Timestamp, got[1].Timestamp)
	}
	if got[0].Status != domain.StatusRebalancedBestPair {
		t.Errorf("Status = %v, want rebalanced_best_pair", got[0].Status)
	}
}

func TestBacktestRowStore_DuplicateKey(t *testing.T) {
	store := NewBacktestRowStore()
	ctx := context.Background()

	rows := []*domain.BacktestRow{{RunID: "run1", Timestamp: 1000}}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("first InsertBulk failed: %v", err)
	}

	if err := store.InsertBulk(ctx, rows); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestBacktestRowStore_IntraBatchDuplicate(t *testing.T) {
	store := NewBacktestRowStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.BacktestRow{
		{RunID: "run1", Timestamp: 1000},
		{RunID: "run1", Timestamp: 1000},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByRunID(ctx, "run1")
	if len(got) != 0 {
		t.Errorf("expected empty store after failed batch, got %d rows", len(got))
	}
}

func TestBacktestRowStore_GetByTimeRange(t *testing.T) {
	store := NewBacktestRowStore()
	ctx := context.Background()

	rows := []*domain.BacktestRow{
		{RunID: "run1", Timestamp: 1000},
		{RunID: "run1", Timestamp: 2000},
		{RunID: "run1", Timestamp: 3000},
		{RunID: "run2", Timestamp: 2000},
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByTimeRange(ctx, "run1", 1500, 2500)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 1 || got[0].Timestamp != 2000 {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestBacktestRowStore_InvalidInput(t *testing.T) {
	store := NewBacktestRowStore()

	err := store.InsertBulk(context.Background(), []*domain.BacktestRow{{Timestamp: 1000}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
