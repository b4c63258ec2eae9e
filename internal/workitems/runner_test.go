package workitems

// ============================================================================
// Work Item Runner Test File
// Purpose: Verify FIFO execution, init-once semantics, multi-tick resumable
//          items, force completion, re-entrancy rejection and the
//          completion flags
// ============================================================================

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOneShotOrder verifies one-shot items run in enqueue order.
func TestOneShotOrder(t *testing.T) {
	r := NewRunner()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		r.Add(OneShot(func() { order = append(order, i) }))
	}

	assert.True(t, r.Process(false))
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.False(t, r.Pending())
}

// TestResumableInitOnce verifies init runs exactly once across yields.
func TestResumableInitOnce(t *testing.T) {
	r := NewRunner()
	inits, steps := 0, 0
	r.Add(Resumable(
		func() { inits++ },
		func(force bool) bool {
			steps++
			return steps >= 3
		},
	))

	assert.False(t, r.Process(false))
	assert.False(t, r.Process(false))
	assert.True(t, r.Process(false))

	assert.Equal(t, 1, inits)
	assert.Equal(t, 3, steps)
}

// TestYieldPreservesOrder verifies a yielded item stays ahead of later
// enqueues.
func TestYieldPreservesOrder(t *testing.T) {
	r := NewRunner()
	var order []string
	step := 0
	r.Add(Resumable(nil, func(force bool) bool {
		step++
		order = append(order, "slow")
		return step >= 2
	}))
	r.Add(OneShot(func() { order = append(order, "fast") }))

	require.False(t, r.Process(false))
	require.True(t, r.Process(false))
	assert.Equal(t, []string{"slow", "slow", "fast"}, order)
}

// TestForceCompletes verifies force pushes a resumable to completion in one
// call.
func TestForceCompletes(t *testing.T) {
	r := NewRunner()
	steps := 0
	r.Add(Resumable(nil, func(force bool) bool {
		steps++
		if force {
			return true
		}
		return steps >= 100
	}))

	assert.True(t, r.Process(true))
	assert.Equal(t, 1, steps)
}

// TestForceIncompleteDropped verifies an item that defies force is dropped
// rather than wedging the queue.
func TestForceIncompleteDropped(t *testing.T) {
	r := NewRunner()
	r.Add(Resumable(nil, func(force bool) bool { return false }))
	r.Add(OneShot(func() {}))

	assert.True(t, r.Process(true))
	assert.False(t, r.Pending())
}

// TestItemsMayEnqueueItems verifies nested enqueue (not nested execution)
// works and runs in the same batch.
func TestItemsMayEnqueueItems(t *testing.T) {
	r := NewRunner()
	var order []string
	r.Add(OneShot(func() {
		order = append(order, "outer")
		r.Add(OneShot(func() { order = append(order, "inner") }))
	}))

	assert.True(t, r.Process(false))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

// TestReentrancyRejected verifies an item calling Process is refused.
func TestReentrancyRejected(t *testing.T) {
	r := NewRunner()
	var nested bool
	r.Add(OneShot(func() {
		nested = r.Process(false)
	}))

	assert.True(t, r.Process(false))
	assert.False(t, nested, "nested Process must be rejected")
}

// TestCompletionFlags verifies flood-fill runs before the embedding
// recompute, both exactly once, after the batch drains.
func TestCompletionFlags(t *testing.T) {
	r := NewRunner()
	var order []string
	r.OnFloodFill = func() { order = append(order, "flood") }
	r.OnRecalculateEmbedding = func() { order = append(order, "embedding") }

	r.Add(OneShot(func() {
		r.QueueFloodFill()
		r.MarkEmbeddingDirty()
	}))
	assert.True(t, r.Pending())
	assert.True(t, r.Process(false))
	assert.Equal(t, []string{"flood", "embedding"}, order)

	// Flags are cleared; a second run is a no-op.
	assert.True(t, r.Process(false))
	assert.Equal(t, []string{"flood", "embedding"}, order)
}

// TestFlagsWithoutItems verifies a bare flag still fires on the next run.
func TestFlagsWithoutItems(t *testing.T) {
	r := NewRunner()
	fired := 0
	r.OnFloodFill = func() { fired++ }

	r.QueueFloodFill()
	assert.True(t, r.Pending())
	assert.True(t, r.Process(false))
	assert.Equal(t, 1, fired)
	assert.False(t, r.Pending())
}
