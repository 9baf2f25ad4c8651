package eventconsumers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventpubsub"
)

// ConfirmationWorker applies terminal execution reports to the slot set.
// Terminals are untrusted: a report that does not correlate with a known
// dispatch or an open slot is logged and dropped without mutating anything.
type ConfirmationWorker struct {
	wg      *sync.WaitGroup
	router  *RouterWorker
	tracker *SlotTrackerWorker
	sink    eventmodels.AuditSink
}

func NewConfirmationWorker(wg *sync.WaitGroup, router *RouterWorker, tracker *SlotTrackerWorker, sink eventmodels.AuditSink) *ConfirmationWorker {
	return &ConfirmationWorker{
		wg:      wg,
		router:  router,
		tracker: tracker,
		sink:    sink,
	}
}

func (w *ConfirmationWorker) handleExecutionConfirmed(event eventmodels.ExecutionConfirmedEvent) {
	ctx := event.Ctx
	result := event.Result

	if err := result.Validate(); err != nil {
		log.WithContext(ctx).Warnf("ConfirmationWorker: dropping invalid execution result from terminal %v: %v", event.TerminalID, err)
		return
	}

	pending, ok := w.router.ResolvePending(result.FireID)
	if !ok {
		log.WithContext(ctx).Warnf("ConfirmationWorker: execution result for unknown fire %v from terminal %v, dropping", result.FireID, event.TerminalID)
		return
	}

	if result.Status == eventmodels.ExecutionStatusRejected {
		log.WithContext(ctx).Infof("ConfirmationWorker: terminal %v rejected fire %v", event.TerminalID, result.FireID)
		w.record(ctx, eventmodels.OutcomeRecord{
			Kind:     eventmodels.OutcomeKindOutcome,
			FireID:   result.FireID,
			UserID:   pending.UserID,
			Symbol:   pending.Symbol,
			Accepted: false,
			Reason:   "rejected_by_terminal",
		})
		return
	}

	slot := &eventmodels.Slot{
		SlotID:   uuid.NewString(),
		FireID:   result.FireID,
		Ticket:   result.Ticket,
		UserID:   pending.UserID,
		Mode:     pending.Mode,
		Symbol:   pending.Symbol,
		OpenedAt: w.tracker.now(),
	}

	if err := w.tracker.TryOpen(ctx, slot); err != nil {
		// The fill is real regardless of our accounting. Record it and let
		// reconciliation surface the overflow rather than pretending the
		// position does not exist.
		log.WithContext(ctx).Errorf("ConfirmationWorker: failed to open slot for fire %v: %v", result.FireID, err)
		return
	}

	log.WithContext(ctx).Infof("ConfirmationWorker: fire %v filled as ticket %v (user=%v, slot=%v)", result.FireID, result.Ticket, pending.UserID, slot.SlotID)

	w.record(ctx, eventmodels.OutcomeRecord{
		Kind:     eventmodels.OutcomeKindOutcome,
		FireID:   result.FireID,
		UserID:   pending.UserID,
		Symbol:   pending.Symbol,
		Accepted: true,
		Reason:   "filled",
		Volume:   pending.Volume,
	})
}

func (w *ConfirmationWorker) handlePositionClosed(event eventmodels.PositionClosedEvent) {
	ctx := event.Ctx
	closeEv := event.Close

	if err := closeEv.Validate(); err != nil {
		log.WithContext(ctx).Warnf("ConfirmationWorker: dropping invalid close event from terminal %v: %v", event.TerminalID, err)
		return
	}

	slot, err := w.tracker.CloseByTicket(ctx, closeEv.Ticket, closeEv.CloseReason, closeEv.Pnl)
	if err != nil {
		log.WithContext(ctx).Errorf("ConfirmationWorker: failed to close ticket %v: %v", closeEv.Ticket, err)
		return
	}

	if slot == nil {
		log.WithContext(ctx).Warnf("ConfirmationWorker: close event for unknown ticket %v from terminal %v, dropping", closeEv.Ticket, event.TerminalID)
		return
	}

	log.WithContext(ctx).Infof("ConfirmationWorker: ticket %v closed (user=%v, pnl=%v, reason=%v)", closeEv.Ticket, slot.UserID, closeEv.Pnl, closeEv.CloseReason)

	w.record(ctx, eventmodels.OutcomeRecord{
		Kind:     eventmodels.OutcomeKindOutcome,
		FireID:   slot.FireID,
		UserID:   slot.UserID,
		Symbol:   slot.Symbol,
		Accepted: true,
		Reason:   "closed",
		Pnl:      closeEv.Pnl,
	})
}

func (w *ConfirmationWorker) record(ctx context.Context, rec eventmodels.OutcomeRecord) {
	if w.sink == nil {
		return
	}

	rec.RecordedAt = w.tracker.now()
	w.sink.Record(ctx, rec)
}

func (w *ConfirmationWorker) Start(ctx context.Context) {
	w.wg.Add(1)

	eventpubsub.Subscribe("ConfirmationWorker", eventpubsub.ExecutionConfirmedEvent, w.handleExecutionConfirmed)
	eventpubsub.Subscribe("ConfirmationWorker", eventpubsub.PositionClosedEvent, w.handlePositionClosed)

	go func() {
		defer w.wg.Done()

		<-ctx.Done()
		log.Info("stopping ConfirmationWorker consumer")
	}()
}
