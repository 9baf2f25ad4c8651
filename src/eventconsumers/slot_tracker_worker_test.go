package eventconsumers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventservices"
)

func newTestSlotTracker(store eventmodels.SlotStore) *SlotTrackerWorker {
	wg := &sync.WaitGroup{}
	return NewSlotTrackerWorker(wg, store, eventservices.NewStaticRiskProfileStore())
}

func openSlot(id string, userID string, mode eventmodels.TradeMode, openedAt time.Time) *eventmodels.Slot {
	return &eventmodels.Slot{
		SlotID:   id,
		FireID:   "fire-" + id,
		Ticket:   int64(len(id)) * 1000,
		UserID:   userID,
		Mode:     mode,
		Symbol:   "EURUSD",
		OpenedAt: openedAt,
	}
}

func TestSlotTrackerTryOpen(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("enforces the manual concurrency cap", func(t *testing.T) {
		// default profile allows 3 manual slots
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())

		for i := 0; i < 3; i++ {
			err := tracker.TryOpen(ctx, openSlot(fmt.Sprintf("s-%d", i), "user-1", eventmodels.TradeModeManual, now))
			require.NoError(t, err)
		}

		err := tracker.TryOpen(ctx, openSlot("s-4", "user-1", eventmodels.TradeModeManual, now))
		assert.ErrorIs(t, err, eventmodels.ErrSlotLimitReached)
	})

	t.Run("modes are capped independently", func(t *testing.T) {
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())

		for i := 0; i < 3; i++ {
			require.NoError(t, tracker.TryOpen(ctx, openSlot(fmt.Sprintf("m-%d", i), "user-1", eventmodels.TradeModeManual, now)))
		}

		// auto cap is 1, independent of the exhausted manual cap
		assert.NoError(t, tracker.TryOpen(ctx, openSlot("a-1", "user-1", eventmodels.TradeModeAuto, now)))
		assert.ErrorIs(t, tracker.TryOpen(ctx, openSlot("a-2", "user-1", eventmodels.TradeModeAuto, now)), eventmodels.ErrSlotLimitReached)
	})

	t.Run("users are capped independently", func(t *testing.T) {
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())

		for i := 0; i < 3; i++ {
			require.NoError(t, tracker.TryOpen(ctx, openSlot(fmt.Sprintf("u1-%d", i), "user-1", eventmodels.TradeModeManual, now)))
		}

		assert.NoError(t, tracker.TryOpen(ctx, openSlot("u2-1", "user-2", eventmodels.TradeModeManual, now)))
	})

	t.Run("concurrent opens never exceed the cap", func(t *testing.T) {
		store := eventservices.NewInMemorySlotStore()
		tracker := newTestSlotTracker(store)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tracker.TryOpen(ctx, openSlot(fmt.Sprintf("c-%d", i), "user-1", eventmodels.TradeModeManual, now))
			}(i)
		}
		wg.Wait()

		open, err := store.CountOpen(ctx, "user-1", eventmodels.TradeModeManual)
		require.NoError(t, err)
		assert.Equal(t, 3, open)
	})
}

func TestSlotTrackerCloseByTicket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("closing releases the slot for reuse", func(t *testing.T) {
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())
		tracker.SetClock(func() time.Time { return now })

		slot := openSlot("s-1", "user-1", eventmodels.TradeModeAuto, now)
		slot.Ticket = 42
		require.NoError(t, tracker.TryOpen(ctx, slot))
		require.ErrorIs(t, tracker.TryOpen(ctx, openSlot("s-2", "user-1", eventmodels.TradeModeAuto, now)), eventmodels.ErrSlotLimitReached)

		closed, err := tracker.CloseByTicket(ctx, 42, "tp_hit", 12.5)
		require.NoError(t, err)
		require.NotNil(t, closed)
		assert.Equal(t, "s-1", closed.SlotID)

		assert.NoError(t, tracker.TryOpen(ctx, openSlot("s-3", "user-1", eventmodels.TradeModeAuto, now)))
	})

	t.Run("unknown ticket returns nil without error", func(t *testing.T) {
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())

		closed, err := tracker.CloseByTicket(ctx, 999, "sl_hit", -5)

		require.NoError(t, err)
		assert.Nil(t, closed)
	})

	t.Run("losses accumulate into the daily loss percent", func(t *testing.T) {
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())
		tracker.SetClock(func() time.Time { return now })

		slot := openSlot("s-1", "user-1", eventmodels.TradeModeManual, now)
		slot.Ticket = 7
		require.NoError(t, tracker.TryOpen(ctx, slot))

		_, err := tracker.CloseByTicket(ctx, 7, "sl_hit", -30)
		require.NoError(t, err)

		assert.InDelta(t, 3.0, tracker.DailyLossPercent("user-1", 1000), 1e-9)

		// profits never reduce the accumulated loss
		slot2 := openSlot("s-2", "user-1", eventmodels.TradeModeManual, now)
		slot2.Ticket = 8
		require.NoError(t, tracker.TryOpen(ctx, slot2))
		_, err = tracker.CloseByTicket(ctx, 8, "tp_hit", 50)
		require.NoError(t, err)

		assert.InDelta(t, 3.0, tracker.DailyLossPercent("user-1", 1000), 1e-9)
	})

	t.Run("daily loss resets at the day boundary", func(t *testing.T) {
		current := now
		tracker := newTestSlotTracker(eventservices.NewInMemorySlotStore())
		tracker.SetClock(func() time.Time { return current })

		slot := openSlot("s-1", "user-1", eventmodels.TradeModeManual, now)
		slot.Ticket = 7
		require.NoError(t, tracker.TryOpen(ctx, slot))
		_, err := tracker.CloseByTicket(ctx, 7, "sl_hit", -30)
		require.NoError(t, err)
		require.InDelta(t, 3.0, tracker.DailyLossPercent("user-1", 1000), 1e-9)

		current = current.Add(25 * time.Hour)

		assert.Zero(t, tracker.DailyLossPercent("user-1", 1000))
	})
}

func TestSlotTrackerReconcile(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("recomputed truth overwrites drifted counters", func(t *testing.T) {
		// arrange: a slot created behind the tracker's back
		store := eventservices.NewInMemorySlotStore()
		tracker := newTestSlotTracker(store)

		ghost := openSlot("ghost", "user-1", eventmodels.TradeModeAuto, now)
		ghost.Status = eventmodels.SlotStatusOpen
		require.NoError(t, store.Create(ctx, ghost))

		// the cached counter says there is capacity
		hasCapacity, err := tracker.HasCapacity(ctx, "user-1", eventmodels.TradeModeAuto)
		require.NoError(t, err)
		require.True(t, hasCapacity)

		// act
		require.NoError(t, tracker.Reconcile(ctx))

		// assert
		hasCapacity, err = tracker.HasCapacity(ctx, "user-1", eventmodels.TradeModeAuto)
		require.NoError(t, err)
		assert.False(t, hasCapacity)
	})
}

func TestSlotTrackerSweepStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("force-closes slots past the staleness threshold", func(t *testing.T) {
		store := eventservices.NewInMemorySlotStore()
		tracker := newTestSlotTracker(store)
		tracker.SetClock(func() time.Time { return now })

		stale := openSlot("stale", "user-1", eventmodels.TradeModeManual, now.Add(-25*time.Hour))
		fresh := openSlot("fresh", "user-1", eventmodels.TradeModeManual, now.Add(-1*time.Hour))
		require.NoError(t, tracker.TryOpen(ctx, stale))
		require.NoError(t, tracker.TryOpen(ctx, fresh))

		require.NoError(t, tracker.SweepStale(ctx))

		open, err := store.OpenSlots(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "fresh", open[0].SlotID)
	})

	t.Run("slots just under the threshold are untouched", func(t *testing.T) {
		store := eventservices.NewInMemorySlotStore()
		tracker := newTestSlotTracker(store)
		tracker.SetClock(func() time.Time { return now })

		borderline := openSlot("borderline", "user-1", eventmodels.TradeModeManual, now.Add(-24*time.Hour))
		require.NoError(t, tracker.TryOpen(ctx, borderline))

		require.NoError(t, tracker.SweepStale(ctx))

		open, err := store.OpenSlots(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})
}
