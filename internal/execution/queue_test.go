package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mselser95/mercury/pkg/types"
)

func TestQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewQueue(0)

	now := time.Now()
	low := &QueuedSignal{SignalID: "low", Priority: types.Priority(5), QueuedAt: now}
	criticalFirst := &QueuedSignal{SignalID: "critical-1", Priority: types.Priority(0), QueuedAt: now}
	criticalSecond := &QueuedSignal{SignalID: "critical-2", Priority: types.Priority(0), QueuedAt: now.Add(time.Millisecond)}

	require.NoError(t, q.Enqueue(low))
	require.NoError(t, q.Enqueue(criticalSecond))
	require.NoError(t, q.Enqueue(criticalFirst))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "critical-1", first.SignalID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "critical-2", second.SignalID)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "low", third.SignalID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueueRejectsAtCapacity(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(&QueuedSignal{SignalID: "a"}))
	assert.ErrorIs(t, q.Enqueue(&QueuedSignal{SignalID: "b"}), ErrQueueFull)
}

func TestQueueRejectsDuplicateSignalID(t *testing.T) {
	q := NewQueue(0)
	require.NoError(t, q.Enqueue(&QueuedSignal{SignalID: "dup"}))
	assert.ErrorIs(t, q.Enqueue(&QueuedSignal{SignalID: "dup"}), ErrDuplicateSignal)
}
