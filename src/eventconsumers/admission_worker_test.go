package eventconsumers

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

func admissionTestConfig() *eventmodels.AdmissionConfigYAML {
	return &eventmodels.AdmissionConfigYAML{
		Classes: map[string]*eventmodels.AdmissionClassYAML{
			"forex": {
				Symbols:             []string{"EURUSD", "GBPUSD"},
				TargetDailyCount:    12,
				BucketHourlyRate:    100,
				BucketBurst:         100,
				HighScore:           90,
				FloorScore:          65,
				MidScore:            72,
				LogisticSlope:       0.18,
				MinExpectedValue:    1.8,
				MinRarityQuantile:   0.97,
				AheadPaceThreshold:  1.25,
				BehindPaceThreshold: 0.75,
				TrickleProbability:  0.2,
				DupWindowMinutes:    15,
				DupWindowShortSecs:  180,
				PipSize:             0.0001,
				PipValuePerLot:      10,
			},
		},
	}
}

func newTestAdmissionWorker(cfg *eventmodels.AdmissionConfigYAML, now time.Time, randValue float64) *AdmissionWorker {
	wg := &sync.WaitGroup{}
	worker := NewAdmissionWorker(wg, cfg, nil)
	worker.SetClock(func() time.Time { return now }, func() float64 { return randValue })
	return worker
}

func testSignal(id string, score float64) eventmodels.Signal {
	return eventmodels.Signal{
		SignalID:  id,
		Symbol:    "EURUSD",
		Direction: eventmodels.DirectionBuy,
		Entry:     1.1000,
		Stop:      1.0950,
		Target:    1.1100,
		Score:     score,
		Pattern:   fmt.Sprintf("PATTERN_%s", id),
		CreatedAt: time.Now().UTC(),
	}
}

func TestAdmissionWorkerAccept(t *testing.T) {
	// 10:00 UTC, london session, 12 active hours remaining
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("exceptional signal passes immediately", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		decision := worker.Accept(testSignal("sig-1", 95), 0, 12)

		assert.True(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionImmediatePass, decision.Reason)
		assert.Equal(t, "forex", decision.Class)
	})

	t.Run("high expected value passes regardless of score", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		signal := testSignal("sig-1", 40)
		signal.ExpectedValue = 2.5

		decision := worker.Accept(signal, 0, 12)

		assert.True(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionImmediatePass, decision.Reason)
	})

	t.Run("replay and duplicate memory is evicted after its window", func(t *testing.T) {
		// arrange
		current := now
		wg := &sync.WaitGroup{}
		worker := NewAdmissionWorker(wg, admissionTestConfig(), nil)
		worker.SetClock(func() time.Time { return current }, func() float64 { return 0.99 })

		decision := worker.Accept(testSignal("sig-1", 95), 0, 12)
		require.True(t, decision.Accepted)
		require.Len(t, worker.seen, 1)
		require.Len(t, worker.dedupe, 1)

		// act
		current = now.Add(25 * time.Hour)
		worker.evictExpired()

		// assert
		assert.Len(t, worker.seen, 0)
		assert.Len(t, worker.dedupe, 0)
	})

	t.Run("omitted override thresholds disable the fast lanes", func(t *testing.T) {
		// arrange: a class config that never set the expected-value and
		// rarity thresholds must not wave every signal through.
		cfg := admissionTestConfig()
		cfg.Classes["forex"].MinExpectedValue = 0
		cfg.Classes["forex"].MinRarityQuantile = 0
		worker := newTestAdmissionWorker(cfg, now, 0.99)

		signal := testSignal("sig-1", 40)
		signal.ExpectedValue = 2.5
		signal.RarityQuantile = 0.99

		// act
		decision := worker.Accept(signal, 0, 12)

		// assert
		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectScore, decision.Reason)
	})

	t.Run("retransmission of a known signal_id is suppressed", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		first := worker.Accept(testSignal("sig-1", 95), 0, 12)
		require.True(t, first.Accepted)

		second := worker.Accept(testSignal("sig-1", 95), 0, 12)

		assert.False(t, second.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectReplay, second.Reason)
	})

	t.Run("near-duplicate within the window is suppressed", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		first := testSignal("sig-1", 95)
		second := testSignal("sig-2", 96)
		second.Pattern = first.Pattern

		require.True(t, worker.Accept(first, 0, 12).Accepted)
		decision := worker.Accept(second, 1, 12)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectDup, decision.Reason)
	})

	t.Run("exhausted daily quota rejects mid-band signals", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.0)

		decision := worker.Accept(testSignal("sig-1", 80), 12, 12)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectQuota, decision.Reason)
	})

	t.Run("quota never gates an exceptional signal", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		decision := worker.Accept(testSignal("sig-1", 95), 12, 12)

		assert.True(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionImmediatePass, decision.Reason)
	})

	t.Run("low score is rejected when on pace", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.0)

		// 6 of 12 accepted with 12 hours left: exactly on pace
		decision := worker.Accept(testSignal("sig-1", 50), 6, 12)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectScore, decision.Reason)
	})

	t.Run("low score trickles through when behind pace", func(t *testing.T) {
		// 2 of 12 accepted with 4 hours left: far behind pace. The random
		// draw of 0.0 lands under the 0.2 trickle probability.
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.0)

		decision := worker.Accept(testSignal("sig-1", 50), 2, 4)

		assert.True(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionTrickle, decision.Reason)
	})

	t.Run("behind-pace trickle still respects the random draw", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		decision := worker.Accept(testSignal("sig-1", 50), 2, 4)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectScore, decision.Reason)
	})

	t.Run("mid-band signal passes the logistic gate on pace", func(t *testing.T) {
		// score 80 against mid 72 and slope 0.18 gives p ~= 0.81
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.5)

		decision := worker.Accept(testSignal("sig-1", 80), 6, 12)

		assert.True(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionAccepted, decision.Reason)
	})

	t.Run("mid-band signal fails the gate on a high draw", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.99)

		decision := worker.Accept(testSignal("sig-1", 80), 6, 12)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectGate, decision.Reason)
	})

	t.Run("being ahead of pace shrinks the gate", func(t *testing.T) {
		// 9 of 12 accepted with 20 hours left: well ahead of pace, so the
		// same draw that passed on pace now fails.
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.5)

		decision := worker.Accept(testSignal("sig-1", 80), 9, 20)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectGate, decision.Reason)
	})

	t.Run("session bucket rate-limits accepted signals", func(t *testing.T) {
		cfg := admissionTestConfig()
		cfg.Classes["forex"].BucketHourlyRate = 0.001
		cfg.Classes["forex"].BucketBurst = 1
		worker := newTestAdmissionWorker(cfg, now, 0.0)

		first := worker.Accept(testSignal("sig-1", 80), 0, 12)
		require.True(t, first.Accepted)

		second := worker.Accept(testSignal("sig-2", 80), 1, 12)

		assert.False(t, second.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectRate, second.Reason)
	})

	t.Run("invalid signal is dropped", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.0)

		signal := testSignal("sig-1", 80)
		signal.Direction = "SIDEWAYS"

		decision := worker.Accept(signal, 0, 12)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectInvalid, decision.Reason)
	})

	t.Run("unknown symbol is dropped", func(t *testing.T) {
		worker := newTestAdmissionWorker(admissionTestConfig(), now, 0.0)

		signal := testSignal("sig-1", 80)
		signal.Symbol = "USDTRY"

		decision := worker.Accept(signal, 0, 12)

		assert.False(t, decision.Accepted)
		assert.Equal(t, eventmodels.AdmissionRejectInvalid, decision.Reason)
	})
}
