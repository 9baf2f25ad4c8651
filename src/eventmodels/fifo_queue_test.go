package eventmodels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOQueue(t *testing.T) {
	t.Run("dequeue drains in insertion order", func(t *testing.T) {
		// arrange
		queue := NewFIFOQueue[int]("test", 4)
		queue.Enqueue(1)
		queue.Enqueue(2)
		queue.Enqueue(3)

		// act / assert
		for want := 1; want <= 3; want++ {
			item, ok := queue.Dequeue()
			require.True(t, ok)
			assert.Equal(t, want, item)
		}

		_, ok := queue.Dequeue()
		assert.False(t, ok)
		assert.Equal(t, 0, queue.Len())
	})

	t.Run("enqueue on a full queue drops instead of blocking", func(t *testing.T) {
		queue := NewFIFOQueue[int]("test", 2)
		queue.Enqueue(1)
		queue.Enqueue(2)
		queue.Enqueue(3)

		assert.Equal(t, 2, queue.Len())

		item, ok := queue.Dequeue()
		require.True(t, ok)
		assert.Equal(t, 1, item)
	})
}
