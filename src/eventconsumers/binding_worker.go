package eventconsumers

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventpubsub"
)

// BindingWorker refreshes terminal bindings from heartbeat reports. A
// heartbeat never executes business logic; it only updates last-seen and
// account telemetry on the existing binding.
type BindingWorker struct {
	wg       *sync.WaitGroup
	bindings eventmodels.BindingStore
}

func NewBindingWorker(wg *sync.WaitGroup, bindings eventmodels.BindingStore) *BindingWorker {
	return &BindingWorker{
		wg:       wg,
		bindings: bindings,
	}
}

func (w *BindingWorker) handleHeartbeat(event eventmodels.TerminalHeartbeatEvent) {
	ctx := event.Ctx
	hb := event.Heartbeat

	if err := hb.Validate(); err != nil {
		log.WithContext(ctx).Warnf("BindingWorker: dropping invalid heartbeat: %v", err)
		return
	}

	if err := w.bindings.UpsertHeartbeat(ctx, hb); err != nil {
		log.WithContext(ctx).Errorf("BindingWorker: failed to upsert heartbeat for terminal %v: %v", hb.TerminalID, err)
		return
	}

	log.WithContext(ctx).Debugf("BindingWorker: heartbeat from terminal %v (equity=%v)", hb.TerminalID, hb.Equity)
}

func (w *BindingWorker) Start(ctx context.Context) {
	w.wg.Add(1)

	eventpubsub.Subscribe("BindingWorker", eventpubsub.TerminalHeartbeatEvent, w.handleHeartbeat)

	go func() {
		defer w.wg.Done()

		<-ctx.Done()
		log.Info("stopping BindingWorker consumer")
	}()
}
