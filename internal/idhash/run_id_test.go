package idhash

import (
	"testing"

	"lending-loop-lab/internal/domain"
)

var (
	testLoop   = domain.LoopConfig{LTV: 0.9, StopCondition: 0.8, InitialCollateral: 100}
	testPolicy = domain.PolicyConfig{NegativeSpreadThreshold: -10, ConsecutivePeriods: 3, TxCostUSD: 0.05}
)

func TestComputeRunID(t *testing.T) {
	got := ComputeRunID(1000, 9000, 120, testLoop, testPolicy)

	if len(got) != 64 {
		t.Errorf("ComputeRunID() length = %d, want 64", len(got))
	}

	// Same inputs always produce the same ID.
	for i := 0; i < 10; i++ {
		if again := ComputeRunID(1000, 9000, 120, testLoop, testPolicy); again != got {
			t.Fatalf("not deterministic: %s != %s", again, got)
		}
	}
}

func TestComputeRunID_DifferentInputs(t *testing.T) {
	base := ComputeRunID(1000, 9000, 120, testLoop, testPolicy)

	if ComputeRunID(2000, 9000, 120, testLoop, testPolicy) == base {
		t.Error("different first timestamp should produce a different ID")
	}
	if ComputeRunID(1000, 9000, 121, testLoop, testPolicy) == base {
		t.Error("different observation count should produce a different ID")
	}

	loop := testLoop
	loop.LTV = 0.8
	if ComputeRunID(1000, 9000, 120, loop, testPolicy) == base {
		t.Error("different LTV should produce a different ID")
	}

	policy := testPolicy
	policy.ConsecutivePeriods = 4
	if ComputeRunID(1000, 9000, 120, testLoop, policy) == base {
		t.Error("different lookback window should produce a different ID")
	}
}
