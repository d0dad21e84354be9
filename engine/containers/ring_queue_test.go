package containers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/containers"
)

func TestRingQueueFIFO(t *testing.T) {
	q := containers.NewRingQueue[int](3)
	assert.True(t, q.IsEmpty())

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Enqueue(3))
	assert.True(t, q.IsFull())
	assert.Error(t, q.Enqueue(4))

	front, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, front)

	for want := 1; want <= 3; want++ {
		got, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = q.Dequeue()
	assert.Error(t, err)
}

func TestRingQueueWrapsAround(t *testing.T) {
	q := containers.NewRingQueue[string](2)
	require.NoError(t, q.Enqueue("a"))
	_, err := q.Dequeue()
	require.NoError(t, err)

	require.NoError(t, q.Enqueue("b"))
	require.NoError(t, q.Enqueue("c"))
	assert.Equal(t, 2, q.Len())

	got, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}
