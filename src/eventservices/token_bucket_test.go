package eventservices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	t.Run("starts full and drains to empty", func(t *testing.T) {
		// arrange
		now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		bucket := NewTokenBucket(2.0, 3.0, func() time.Time { return now })

		// act + assert
		assert.True(t, bucket.Take())
		assert.True(t, bucket.Take())
		assert.True(t, bucket.Take())
		assert.False(t, bucket.Take())
	})

	t.Run("refills at the hourly rate", func(t *testing.T) {
		// arrange
		now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		bucket := NewTokenBucket(2.0, 3.0, func() time.Time { return now })

		for i := 0; i < 3; i++ {
			require.True(t, bucket.Take())
		}
		require.False(t, bucket.Take())

		// act: 30 minutes at 2 tokens/hour yields one token
		now = now.Add(30 * time.Minute)

		// assert
		assert.True(t, bucket.Take())
		assert.False(t, bucket.Take())
	})

	t.Run("never refills beyond the burst cap", func(t *testing.T) {
		// arrange
		now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		bucket := NewTokenBucket(2.0, 3.0, func() time.Time { return now })

		// act
		now = now.Add(48 * time.Hour)

		// assert
		assert.InDelta(t, 3.0, bucket.Available(), 1e-9)
	})
}
