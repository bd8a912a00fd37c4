package link

import (
	"context"
	"time"
)

// --------------------------------------------------------------------------
// Deadline Budget
// --------------------------------------------------------------------------

// Overage is the grace granted when a budget expires between two dependent
// steps of an exchange (for example between a frame header and its payload),
// so the second step is not aborted with zero time left.
const Overage = 100 * time.Millisecond

// Budget tracks a single deadline across a multi-step exchange. The zero
// value is an undefined budget: it never expires and Remaining reports zero.
type Budget struct {
	deadline time.Time
	defined  bool
}

// NewBudget starts a budget of the given duration from now. A non-positive
// duration yields an undefined budget.
func NewBudget(d time.Duration) Budget {
	if d <= 0 {
		return Budget{}
	}
	return Budget{deadline: time.Now().Add(d), defined: true}
}

// Defined reports whether the budget carries an actual deadline.
func (b Budget) Defined() bool {
	return b.defined
}

// Exceeded reports whether the deadline has passed. Undefined budgets are
// never exceeded.
func (b Budget) Exceeded() bool {
	return b.defined && !time.Now().Before(b.deadline)
}

// Remaining returns the time left before the deadline, clamped at zero.
// Undefined budgets report zero; check Defined to tell the cases apart.
func (b Budget) Remaining() time.Duration {
	if !b.defined {
		return 0
	}
	if r := time.Until(b.deadline); r > 0 {
		return r
	}
	return 0
}

// RemainingOrGrace returns the remaining time, or the Overage grace once the
// budget is exceeded. Undefined budgets report zero (no limit).
func (b Budget) RemainingOrGrace() time.Duration {
	if !b.defined {
		return 0
	}
	if r := b.Remaining(); r > 0 {
		return r
	}
	return Overage
}

// Context derives a context carrying the budget's deadline. Undefined budgets
// return the parent with a no-op cancel.
func (b Budget) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if !b.defined {
		return parent, func() {}
	}
	return context.WithDeadline(parent, b.deadline)
}
