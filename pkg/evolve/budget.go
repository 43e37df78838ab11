package evolve

import (
	"sync"
)

// BudgetState tracks the rollout budget lifecycle. EXHAUSTED is terminal.
type BudgetState string

const (
	BudgetActive    BudgetState = "ACTIVE"
	BudgetExhausted BudgetState = "EXHAUSTED"
)

// Budget enforces a hard ceiling on total scenario executions. All
// consumption goes through Reserve; there is no way to mutate the counter
// directly.
type Budget struct {
	mu       sync.Mutex
	max      int
	consumed int
}

// NewBudget creates a budget with the given rollout ceiling. The ceiling is
// validated by EngineConfig before the budget is constructed.
func NewBudget(maxRollouts int) *Budget {
	return &Budget{max: maxRollouts}
}

// Reserve atomically checks and increments the consumed counter. It returns
// false and makes no change if n exceeds the remaining budget.
func (b *Budget) Reserve(n int) bool {
	if n <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumed+n > b.max {
		return false
	}
	b.consumed += n
	return true
}

// Remaining returns max_rollouts - consumed_rollouts.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - b.consumed
}

// Consumed returns the monotonically increasing rollout count.
func (b *Budget) Consumed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumed
}

// Max returns the rollout ceiling.
func (b *Budget) Max() int {
	return b.max
}

// State returns ACTIVE until the budget is fully consumed, then EXHAUSTED.
func (b *Budget) State() BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed >= b.max {
		return BudgetExhausted
	}
	return BudgetActive
}
