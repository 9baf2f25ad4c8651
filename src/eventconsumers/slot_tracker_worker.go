package eventconsumers

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

const (
	defaultStaleSlotAge      = 24*time.Hour + 5*time.Minute
	defaultSweepInterval     = 1 * time.Minute
	defaultReconcileInterval = 30 * time.Second
)

// SlotTrackerWorker maintains the count of concurrently open positions per
// user per mode. The persisted slot set is ground truth; the cached counters
// exist only to make the concurrency-cap check cheap, and reconciliation
// always overwrites them with the recomputed truth when they disagree.
type SlotTrackerWorker struct {
	wg       *sync.WaitGroup
	store    eventmodels.SlotStore
	profiles eventmodels.RiskProfileStore

	// userLocks serializes open/close transitions per user. The
	// capacity check and the subsequent slot creation must be atomic with
	// respect to other transitions for the same user; cross-user
	// operations parallelize freely.
	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex

	countMu  sync.Mutex
	counters map[string]int

	lossMu    sync.Mutex
	dailyLoss map[string]float64
	lossDay   time.Time

	staleAfter        time.Duration
	sweepInterval     time.Duration
	reconcileInterval time.Duration
	now               func() time.Time
}

func NewSlotTrackerWorker(wg *sync.WaitGroup, store eventmodels.SlotStore, profiles eventmodels.RiskProfileStore) *SlotTrackerWorker {
	return &SlotTrackerWorker{
		wg:                wg,
		store:             store,
		profiles:          profiles,
		userLocks:         make(map[string]*sync.Mutex),
		counters:          make(map[string]int),
		dailyLoss:         make(map[string]float64),
		staleAfter:        defaultStaleSlotAge,
		sweepInterval:     defaultSweepInterval,
		reconcileInterval: defaultReconcileInterval,
		now:               time.Now,
	}
}

func (w *SlotTrackerWorker) SetClock(now func() time.Time) {
	w.now = now
}

func (w *SlotTrackerWorker) userLock(userID string) *sync.Mutex {
	w.lockMu.Lock()
	defer w.lockMu.Unlock()

	mu, ok := w.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		w.userLocks[userID] = mu
	}

	return mu
}

func counterKey(userID string, mode eventmodels.TradeMode) string {
	return fmt.Sprintf("%s|%s", userID, mode)
}

func (w *SlotTrackerWorker) cachedCount(userID string, mode eventmodels.TradeMode) int {
	w.countMu.Lock()
	defer w.countMu.Unlock()

	return w.counters[counterKey(userID, mode)]
}

func (w *SlotTrackerWorker) adjustCount(userID string, mode eventmodels.TradeMode, delta int) {
	w.countMu.Lock()
	defer w.countMu.Unlock()

	key := counterKey(userID, mode)
	w.counters[key] += delta
	if w.counters[key] < 0 {
		// Negative counters mean a close raced a reconciliation
		// overwrite; the next reconciliation restores truth.
		w.counters[key] = 0
	}
}

// TryOpen creates a slot if the user has remaining capacity for the mode.
// The check and the increment are atomic per user.
func (w *SlotTrackerWorker) TryOpen(ctx context.Context, slot *eventmodels.Slot) error {
	mu := w.userLock(slot.UserID)
	mu.Lock()
	defer mu.Unlock()

	profile, err := w.profiles.Get(ctx, slot.UserID)
	if err != nil {
		return fmt.Errorf("SlotTrackerWorker:TryOpen(): failed to get risk profile: %w", err)
	}

	limit := profile.MaxOpenSlots(slot.Mode)
	if w.cachedCount(slot.UserID, slot.Mode) >= limit {
		return eventmodels.ErrSlotLimitReached
	}

	slot.Status = eventmodels.SlotStatusOpen
	if err := w.store.Create(ctx, slot); err != nil {
		return fmt.Errorf("SlotTrackerWorker:TryOpen(): failed to create slot: %w", err)
	}

	w.adjustCount(slot.UserID, slot.Mode, 1)
	return nil
}

// HasCapacity is the router's cheap pre-check. The authoritative check
// happens in TryOpen when the fill confirmation arrives.
func (w *SlotTrackerWorker) HasCapacity(ctx context.Context, userID string, mode eventmodels.TradeMode) (bool, error) {
	profile, err := w.profiles.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("SlotTrackerWorker:HasCapacity(): failed to get risk profile: %w", err)
	}

	return w.cachedCount(userID, mode) < profile.MaxOpenSlots(mode), nil
}

// CloseByTicket transitions the slot owning the ticket to CLOSED and
// releases its counter. Returns nil without error when no open slot matches:
// the caller decides whether that is an anomaly.
func (w *SlotTrackerWorker) CloseByTicket(ctx context.Context, ticket int64, reason string, pnl float64) (*eventmodels.Slot, error) {
	slot, err := w.store.FindOpenByTicket(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("SlotTrackerWorker:CloseByTicket(): %w", err)
	}

	if slot == nil {
		return nil, nil
	}

	if err := w.closeSlot(ctx, slot, reason, pnl); err != nil {
		return nil, err
	}

	return slot, nil
}

func (w *SlotTrackerWorker) closeSlot(ctx context.Context, slot *eventmodels.Slot, reason string, pnl float64) error {
	mu := w.userLock(slot.UserID)
	mu.Lock()
	defer mu.Unlock()

	if err := w.store.MarkClosed(ctx, slot.SlotID, w.now(), reason, pnl); err != nil {
		return fmt.Errorf("SlotTrackerWorker:closeSlot(): %w", err)
	}

	w.adjustCount(slot.UserID, slot.Mode, -1)
	w.recordRealizedPnl(slot.UserID, pnl)
	return nil
}

func (w *SlotTrackerWorker) recordRealizedPnl(userID string, pnl float64) {
	if pnl >= 0 {
		return
	}

	w.lossMu.Lock()
	defer w.lossMu.Unlock()

	day := w.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(w.lossDay) {
		w.dailyLoss = make(map[string]float64)
		w.lossDay = day
	}

	w.dailyLoss[userID] += -pnl
}

// DailyLossPercent reports the user's realized same-day loss as a percent of
// the given equity, for the risk validator's daily-loss cap.
func (w *SlotTrackerWorker) DailyLossPercent(userID string, equity float64) float64 {
	if equity <= 0 {
		return 0
	}

	w.lossMu.Lock()
	defer w.lossMu.Unlock()

	day := w.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(w.lossDay) {
		return 0
	}

	return w.dailyLoss[userID] / equity * 100
}

// Reconcile recomputes open counts from the slot set and overwrites the
// cached counters. Counters updated via multiple independent code paths can
// diverge from ground truth over time; recomputed truth always wins.
func (w *SlotTrackerWorker) Reconcile(ctx context.Context) error {
	truth, err := w.store.OpenCounts(ctx)
	if err != nil {
		return fmt.Errorf("SlotTrackerWorker:Reconcile(): %w", err)
	}

	fresh := make(map[string]int)
	for userID, modes := range truth {
		for mode, count := range modes {
			fresh[counterKey(userID, mode)] = count
		}
	}

	w.countMu.Lock()
	defer w.countMu.Unlock()

	for key, cached := range w.counters {
		if cached != fresh[key] {
			log.Warnf("SlotTrackerWorker: counter drift for %v: cached=%v true=%v, overwriting", key, cached, fresh[key])
		}
	}
	for key, count := range fresh {
		if _, ok := w.counters[key]; !ok && count != 0 {
			log.Warnf("SlotTrackerWorker: counter drift for %v: cached=0 true=%v, overwriting", key, count)
		}
	}

	w.counters = fresh
	return nil
}

// SweepStale force-closes slots older than the staleness threshold. A
// position that old with no close event indicates drift or an unreported
// closure.
func (w *SlotTrackerWorker) SweepStale(ctx context.Context) error {
	cutoff := w.now().Add(-w.staleAfter)

	stale, err := w.store.OpenSlotsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("SlotTrackerWorker:SweepStale(): %w", err)
	}

	for i := range stale {
		slot := stale[i]

		// Re-check under the current clock: a close event may have landed
		// between the query and this point.
		if !slot.StaleAt(w.now(), w.staleAfter) {
			continue
		}

		log.Warnf("SlotTrackerWorker: force-closing stale slot %v (user=%v, opened=%v)", slot.SlotID, slot.UserID, slot.OpenedAt)

		if err := w.closeSlot(ctx, &slot, eventmodels.CloseReasonStaleSweep, 0); err != nil {
			log.Errorf("SlotTrackerWorker: failed to force-close slot %v: %v", slot.SlotID, err)
		}
	}

	return nil
}

func (w *SlotTrackerWorker) Start(ctx context.Context) {
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()

		reconcile := time.NewTicker(w.reconcileInterval)
		defer reconcile.Stop()

		sweep := time.NewTicker(w.sweepInterval)
		defer sweep.Stop()

		for {
			select {
			case <-reconcile.C:
				if err := w.Reconcile(ctx); err != nil {
					log.Errorf("SlotTrackerWorker: %v", err)
				}

			case <-sweep.C:
				if err := w.SweepStale(ctx); err != nil {
					log.Errorf("SlotTrackerWorker: %v", err)
				}

			case <-ctx.Done():
				log.Info("stopping SlotTrackerWorker consumer")
				return
			}
		}
	}()
}
