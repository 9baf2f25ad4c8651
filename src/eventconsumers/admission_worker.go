package eventconsumers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventpubsub"
	"github.com/quantfire/signal-dispatch/src/eventservices"
)

// AdmissionWorker decides which candidate signals are allowed to reach
// users. It paces volume against a per-class daily quota, rate limits per
// trading session, suppresses near-duplicates and applies a score-based
// probabilistic gate. Rejections are expected behavior, not errors: every
// decision is recorded for audit and the signal is otherwise dropped.
type AdmissionWorker struct {
	wg   *sync.WaitGroup
	cfg  *eventmodels.AdmissionConfigYAML
	sink eventmodels.AuditSink

	mu        sync.Mutex
	buckets   map[string]*eventservices.TokenBucket
	dedupe    map[string]time.Time
	seen      map[string]time.Time
	accepts   map[string][]time.Time
	decisions []float64

	now       func() time.Time
	randFloat func() float64
}

func NewAdmissionWorker(wg *sync.WaitGroup, cfg *eventmodels.AdmissionConfigYAML, sink eventmodels.AuditSink) *AdmissionWorker {
	return &AdmissionWorker{
		wg:        wg,
		cfg:       cfg,
		sink:      sink,
		buckets:   make(map[string]*eventservices.TokenBucket),
		dedupe:    make(map[string]time.Time),
		seen:      make(map[string]time.Time),
		accepts:   make(map[string][]time.Time),
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// SetClock overrides the time and randomness sources. Tests use this to
// simulate a full trading day deterministically.
func (w *AdmissionWorker) SetClock(now func() time.Time, randFloat func() float64) {
	w.now = now
	w.randFloat = randFloat
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// paceScale converts pacing pressure into a probability multiplier. The
// system being behind pace scales acceptance up; being ahead scales it down.
func paceScale(neededRate, baseRate, aheadThreshold, behindThreshold float64) (scale float64, behindPace bool) {
	if baseRate <= 0 {
		return 1.0, false
	}

	ratio := neededRate / baseRate

	if ratio >= aheadThreshold {
		behindPace = true
	}

	if ratio < 0.25 {
		ratio = 0.25
	} else if ratio > 2.0 {
		ratio = 2.0
	}

	if !behindPace && ratio > behindThreshold {
		// On pace: no scaling either way.
		return 1.0, false
	}

	return ratio, behindPace
}

// Accept applies the full admission pipeline to one signal. count24h is the
// number of acceptances in the trailing 24h for the signal's class and
// activeHoursRemaining the hours left in the trading day.
func (w *AdmissionWorker) Accept(signal eventmodels.Signal, count24h int, activeHoursRemaining float64) eventmodels.AdmissionDecision {
	now := w.now()

	decision := eventmodels.AdmissionDecision{
		SignalID:  signal.SignalID,
		Score:     signal.Score,
		DecidedAt: now,
	}

	if err := signal.Validate(); err != nil {
		log.Warnf("AdmissionWorker: invalid signal dropped: %v", err)
		decision.Reason = eventmodels.AdmissionRejectInvalid
		return decision
	}

	className, class, err := w.cfg.ClassFor(signal.Symbol)
	if err != nil {
		log.Warnf("AdmissionWorker: %v", err)
		decision.Reason = eventmodels.AdmissionRejectInvalid
		return decision
	}
	decision.Class = className

	w.mu.Lock()
	defer w.mu.Unlock()

	// The signal feed guarantees at-least-once delivery, so retransmissions
	// of the same signal_id must be suppressed before anything else.
	if seenAt, ok := w.seen[signal.SignalID]; ok && now.Sub(seenAt) < 24*time.Hour {
		decision.Reason = eventmodels.AdmissionRejectReplay
		return decision
	}
	w.seen[signal.SignalID] = now

	dedupeKey := signal.DedupeKey(className)

	// Immediate-pass override: exceptional signals are rare and must not be
	// throttled away. Only the short duplicate window applies. A class that
	// omits a threshold (zero value) has that lane disabled, otherwise every
	// signal would clear it.
	if (class.HighScore > 0 && signal.Score >= class.HighScore) ||
		(class.MinExpectedValue > 0 && signal.ExpectedValue >= class.MinExpectedValue) ||
		(class.MinRarityQuantile > 0 && signal.RarityQuantile >= class.MinRarityQuantile) {
		if acceptedAt, ok := w.dedupe[dedupeKey]; ok && now.Sub(acceptedAt) < class.DupWindowShort() {
			decision.Reason = eventmodels.AdmissionRejectDup
			return decision
		}

		w.dedupe[dedupeKey] = now
		decision.Accepted = true
		decision.Reason = eventmodels.AdmissionImmediatePass
		return decision
	}

	quotaLeft := class.TargetDailyCount - count24h
	if quotaLeft <= 0 {
		decision.Reason = eventmodels.AdmissionRejectQuota
		return decision
	}

	neededRate := float64(quotaLeft) / math.Max(0.25, activeHoursRemaining)
	baseRate := float64(class.TargetDailyCount) / 24.0
	scale, behindPace := paceScale(neededRate, baseRate, class.AheadPaceThreshold, class.BehindPaceThreshold)

	// Low-tier signals are rejected outright, except for a small randomized
	// trickle when the system is behind pace. The trickle prevents
	// zero-signal days without degrading overall quality.
	if signal.Score < class.FloorScore {
		if behindPace && w.randFloat() < class.TrickleProbability {
			if acceptedAt, ok := w.dedupe[dedupeKey]; ok && now.Sub(acceptedAt) < class.DupWindow() {
				decision.Reason = eventmodels.AdmissionRejectDup
				return decision
			}

			w.dedupe[dedupeKey] = now
			decision.Accepted = true
			decision.Reason = eventmodels.AdmissionTrickle
			return decision
		}

		decision.Reason = eventmodels.AdmissionRejectScore
		return decision
	}

	// Mid-band: duplicate suppression uses the long window unless the score
	// is close to the immediate-pass threshold.
	window := class.DupWindow()
	if class.HighScore-signal.Score <= 5 {
		window = class.DupWindowShort()
	}
	if acceptedAt, ok := w.dedupe[dedupeKey]; ok && now.Sub(acceptedAt) < window {
		decision.Reason = eventmodels.AdmissionRejectDup
		return decision
	}

	p := logistic((signal.Score-class.MidScore)*class.LogisticSlope) * scale
	if p > 1 {
		p = 1
	}
	if w.randFloat() >= p {
		decision.Reason = eventmodels.AdmissionRejectGate
		return decision
	}

	if !w.bucketLocked(className, eventservices.SessionAt(now), class).Take() {
		decision.Reason = eventmodels.AdmissionRejectRate
		return decision
	}

	w.dedupe[dedupeKey] = now
	decision.Accepted = true
	decision.Reason = eventmodels.AdmissionAccepted
	return decision
}

func (w *AdmissionWorker) bucketLocked(className string, session eventmodels.TradingSession, class *eventmodels.AdmissionClassYAML) *eventservices.TokenBucket {
	key := fmt.Sprintf("%s|%s", className, session)
	bucket, ok := w.buckets[key]
	if !ok {
		bucket = eventservices.NewTokenBucket(class.BucketHourlyRate, class.BucketBurst, w.now)
		w.buckets[key] = bucket
	}

	return bucket
}

// count24hLocked prunes and counts acceptances for a class in the trailing
// 24 hours.
func (w *AdmissionWorker) count24hLocked(className string, now time.Time) int {
	cutoff := now.Add(-24 * time.Hour)
	times := w.accepts[className]

	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.accepts[className] = kept

	return len(kept)
}

func (w *AdmissionWorker) handleSignal(event eventmodels.NewSignalEvent) {
	tracer := otel.GetTracerProvider().Tracer("admission:signal")
	ctx, span := tracer.Start(event.Ctx, "<- NewSignalEvent")
	defer span.End()

	logger := log.WithContext(ctx)

	signal := event.Signal
	now := w.now()

	w.mu.Lock()
	className, _, classErr := w.cfg.ClassFor(signal.Symbol)
	count24h := 0
	if classErr == nil {
		count24h = w.count24hLocked(className, now)
	}
	w.mu.Unlock()

	decision := w.Accept(signal, count24h, eventservices.ActiveHoursRemaining(now))

	span.SetAttributes(
		attribute.String("signal_id", signal.SignalID),
		attribute.String("symbol", signal.Symbol),
		attribute.Bool("accepted", decision.Accepted),
		attribute.String("reason", string(decision.Reason)),
	)

	w.mu.Lock()
	if decision.Accepted {
		w.accepts[decision.Class] = append(w.accepts[decision.Class], now)
		w.decisions = append(w.decisions, 1)
	} else {
		w.decisions = append(w.decisions, 0)
	}
	if len(w.decisions) > 1000 {
		w.decisions = w.decisions[len(w.decisions)-1000:]
	}
	w.mu.Unlock()

	w.sink.Record(ctx, eventmodels.OutcomeRecord{
		Kind:       eventmodels.OutcomeKindAdmission,
		RecordedAt: now,
		SignalID:   signal.SignalID,
		Symbol:     signal.Symbol,
		Direction:  string(signal.Direction),
		Accepted:   decision.Accepted,
		Reason:     string(decision.Reason),
		Score:      signal.Score,
	})

	if decision.Accepted {
		logger.WithField("event", "signal").Infof("signal %v accepted (%v)", signal.SignalID, decision.Reason)
		eventpubsub.Publish("AdmissionWorker.handleSignal", eventpubsub.SignalAcceptedEvent, eventmodels.SignalAcceptedEvent{
			Ctx:      ctx,
			Signal:   signal,
			Decision: decision,
		})
	} else {
		logger.WithField("event", "signal").Debugf("signal %v dropped: %v", signal.SignalID, decision.Reason)
	}
}

// evictExpired drops replay and duplicate entries past their longest useful
// window so the maps stay bounded over a long-running process.
func (w *AdmissionWorker) evictExpired() {
	now := w.now()
	cutoff := now.Add(-24 * time.Hour)

	w.mu.Lock()
	defer w.mu.Unlock()

	for id, at := range w.seen {
		if !at.After(cutoff) {
			delete(w.seen, id)
		}
	}
	for key, at := range w.dedupe {
		if !at.After(cutoff) {
			delete(w.dedupe, key)
		}
	}
}

// logPacingSummary reports the rolling acceptance rate so pacing drift shows
// up in the logs before it shows up in the daily totals.
func (w *AdmissionWorker) logPacingSummary() {
	w.mu.Lock()
	window := make([]float64, len(w.decisions))
	copy(window, w.decisions)
	w.mu.Unlock()

	if len(window) == 0 {
		return
	}

	rate, err := stats.Mean(window)
	if err != nil {
		log.Warnf("AdmissionWorker: failed to compute acceptance rate: %v", err)
		return
	}

	log.Infof("AdmissionWorker: acceptance rate %.2f over last %d signals", rate, len(window))
}

func (w *AdmissionWorker) Start(ctx context.Context) {
	w.wg.Add(1)

	eventpubsub.Subscribe("AdmissionWorker", eventpubsub.NewSignalEvent, w.handleSignal)

	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.evictExpired()
				w.logPacingSummary()
			case <-ctx.Done():
				log.Info("stopping AdmissionWorker consumer")
				return
			}
		}
	}()
}
