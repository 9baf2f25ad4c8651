package eventservices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

func TestSessionAt(t *testing.T) {
	day := func(hour int) time.Time {
		return time.Date(2025, 3, 10, hour, 30, 0, 0, time.UTC)
	}

	t.Run("asian session spans the rollover", func(t *testing.T) {
		assert.Equal(t, eventmodels.TradingSessionAsian, SessionAt(day(22)))
		assert.Equal(t, eventmodels.TradingSessionAsian, SessionAt(day(23)))
		assert.Equal(t, eventmodels.TradingSessionAsian, SessionAt(day(0)))
		assert.Equal(t, eventmodels.TradingSessionAsian, SessionAt(day(6)))
	})

	t.Run("london", func(t *testing.T) {
		assert.Equal(t, eventmodels.TradingSessionLondon, SessionAt(day(7)))
		assert.Equal(t, eventmodels.TradingSessionLondon, SessionAt(day(11)))
	})

	t.Run("overlap", func(t *testing.T) {
		assert.Equal(t, eventmodels.TradingSessionOverlap, SessionAt(day(12)))
		assert.Equal(t, eventmodels.TradingSessionOverlap, SessionAt(day(15)))
	})

	t.Run("new york", func(t *testing.T) {
		assert.Equal(t, eventmodels.TradingSessionNewYork, SessionAt(day(16)))
		assert.Equal(t, eventmodels.TradingSessionNewYork, SessionAt(day(21)))
	})

	t.Run("non-utc input is normalized", func(t *testing.T) {
		// 18:00 in UTC+5 is 13:00 UTC
		loc := time.FixedZone("UTC+5", 5*3600)
		assert.Equal(t, eventmodels.TradingSessionOverlap, SessionAt(time.Date(2025, 3, 10, 18, 0, 0, 0, loc)))
	})
}

func TestActiveHoursRemaining(t *testing.T) {
	t.Run("before rollover", func(t *testing.T) {
		at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
		assert.InDelta(t, 12.0, ActiveHoursRemaining(at), 1e-9)
	})

	t.Run("just after rollover starts a fresh day", func(t *testing.T) {
		at := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
		assert.InDelta(t, 24.0, ActiveHoursRemaining(at), 1e-9)
	})

	t.Run("late in the day", func(t *testing.T) {
		at := time.Date(2025, 3, 10, 21, 30, 0, 0, time.UTC)
		assert.InDelta(t, 0.5, ActiveHoursRemaining(at), 1e-9)
	})
}
