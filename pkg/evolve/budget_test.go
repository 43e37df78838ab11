package evolve

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetReserve(t *testing.T) {
	b := NewBudget(5)

	assert.Equal(t, BudgetActive, b.State())
	assert.Equal(t, 5, b.Remaining())

	assert.True(t, b.Reserve(3))
	assert.Equal(t, 2, b.Remaining())
	assert.Equal(t, 3, b.Consumed())

	// Over-reservation fails and makes no change.
	assert.False(t, b.Reserve(3))
	assert.Equal(t, 2, b.Remaining())

	assert.True(t, b.Reserve(2))
	assert.Equal(t, 0, b.Remaining())
	assert.Equal(t, BudgetExhausted, b.State())

	assert.False(t, b.Reserve(1))
}

func TestBudgetRejectsNonPositiveReservations(t *testing.T) {
	b := NewBudget(5)
	assert.False(t, b.Reserve(0))
	assert.False(t, b.Reserve(-1))
	assert.Equal(t, 0, b.Consumed())
}

func TestBudgetMonotonicityUnderConcurrency(t *testing.T) {
	const max = 100
	b := NewBudget(max)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Reserve(1)
			}
		}()
	}
	wg.Wait()

	// 500 attempted units against a ceiling of 100.
	assert.Equal(t, max, b.Consumed())
	assert.Equal(t, 0, b.Remaining())
	assert.Equal(t, BudgetExhausted, b.State())
}

func TestBudgetRemainingInvariant(t *testing.T) {
	b := NewBudget(10)
	for i := 0; i < 12; i++ {
		b.Reserve(1)
		assert.Equal(t, b.Max()-b.Consumed(), b.Remaining())
		assert.LessOrEqual(t, b.Consumed(), b.Max())
	}
}
