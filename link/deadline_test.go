package link

import (
	"context"
	"testing"
	"time"
)

// TestBudgetUndefined verifies the zero and non-positive budgets never expire
func TestBudgetUndefined(t *testing.T) {
	for _, b := range []Budget{{}, NewBudget(0), NewBudget(-time.Second)} {
		if b.Defined() {
			t.Error("Expected undefined budget")
		}
		if b.Exceeded() {
			t.Error("Undefined budget must never be exceeded")
		}
		if b.Remaining() != 0 {
			t.Errorf("Expected zero remaining, got %v", b.Remaining())
		}
		if b.RemainingOrGrace() != 0 {
			t.Errorf("Expected zero grace, got %v", b.RemainingOrGrace())
		}
	}
}

// TestBudgetCountsDown verifies the deadline decreases and finally expires
func TestBudgetCountsDown(t *testing.T) {
	b := NewBudget(50 * time.Millisecond)
	if !b.Defined() {
		t.Fatal("Expected a defined budget")
	}
	if b.Exceeded() {
		t.Fatal("Budget exceeded immediately")
	}
	if r := b.Remaining(); r <= 0 || r > 50*time.Millisecond {
		t.Errorf("Expected remaining in (0, 50ms], got %v", r)
	}

	time.Sleep(60 * time.Millisecond)

	if !b.Exceeded() {
		t.Error("Expected the budget to be exceeded")
	}
	if r := b.Remaining(); r != 0 {
		t.Errorf("Expected zero remaining, got %v", r)
	}
}

// TestBudgetGrace verifies an exceeded budget still grants the overage so a
// dependent follow-up step is not aborted with zero time
func TestBudgetGrace(t *testing.T) {
	b := NewBudget(time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if got := b.RemainingOrGrace(); got != Overage {
		t.Errorf("Expected the %v grace, got %v", Overage, got)
	}
}

// TestBudgetContext verifies the derived context carries the deadline
func TestBudgetContext(t *testing.T) {
	b := NewBudget(time.Minute)
	ctx, cancel := b.Context(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("Expected a deadline on the derived context")
	}
	if !deadline.Equal(b.deadline) {
		t.Errorf("Expected deadline %v, got %v", b.deadline, deadline)
	}

	// undefined budgets pass the parent through
	parent := context.Background()
	ctx, cancel = Budget{}.Context(parent)
	defer cancel()
	if ctx != parent {
		t.Error("Expected the parent context unchanged")
	}
}
