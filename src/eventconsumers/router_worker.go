package eventconsumers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventservices"
)

const (
	defaultBindingFreshness = 180 * time.Second
	pendingFireTTL          = 5 * time.Minute
)

// Routing outcomes reported to the caller.
const (
	RouteDispatched         = "dispatched"
	RouteDryRun             = "dry_run"
	RouteInvalidRequest     = "invalid_request"
	RouteUnknownInstrument  = "unknown_instrument"
	RouteUnresolvedIdentity = "unresolved_identity"
	RouteIdentityMismatch   = "identity_mismatch"
	RouteBindingUnavailable = "binding_unavailable"
	RouteStaleTerminal      = "stale_terminal"
	RouteSlotLimitReached   = "slot_limit_reached"
	RouteDuplicateFire      = "duplicate_fire"
	RouteLedgerUnavailable  = "ledger_unavailable"
	RouteDeliveryFailed     = "delivery_failed"
)

type RouteResult struct {
	OK         bool    `json:"ok"`
	Reason     string  `json:"reason"`
	FireID     string  `json:"fire_id,omitempty"`
	SafeVolume float64 `json:"safe_volume,omitempty"`
}

// PendingFire correlates a dispatched command with the execution confirmation
// that names its fire_id. Entries that never see a confirmation expire.
type PendingFire struct {
	FireID   string
	UserID   string
	Mode     eventmodels.TradeMode
	Symbol   string
	Volume   float64
	IssuedAt time.Time
}

// RouterWorker validates fire requests against identity, freshness, risk and
// capacity, then forwards at most one command per fire_id to the target
// terminal.
type RouterWorker struct {
	wg        *sync.WaitGroup
	cfg       *eventmodels.AdmissionConfigYAML
	bindings  eventmodels.BindingStore
	ledger    eventmodels.IdempotencyLedger
	profiles  eventmodels.RiskProfileStore
	tracker   *SlotTrackerWorker
	registry  *eventservices.TerminalRegistry
	sink      eventmodels.AuditSink
	freshness time.Duration

	mu      sync.Mutex
	pending map[string]PendingFire

	now func() time.Time
}

func NewRouterWorker(
	wg *sync.WaitGroup,
	cfg *eventmodels.AdmissionConfigYAML,
	bindings eventmodels.BindingStore,
	ledger eventmodels.IdempotencyLedger,
	profiles eventmodels.RiskProfileStore,
	tracker *SlotTrackerWorker,
	registry *eventservices.TerminalRegistry,
	sink eventmodels.AuditSink,
) *RouterWorker {
	return &RouterWorker{
		wg:        wg,
		cfg:       cfg,
		bindings:  bindings,
		ledger:    ledger,
		profiles:  profiles,
		tracker:   tracker,
		registry:  registry,
		sink:      sink,
		freshness: defaultBindingFreshness,
		pending:   make(map[string]PendingFire),
		now:       time.Now,
	}
}

func (w *RouterWorker) SetClock(now func() time.Time) {
	w.now = now
}

// Route runs the full dispatch pipeline for one fire request. The returned
// reason is stable and machine-readable; denied risk checks also carry the
// largest volume that would have passed.
func (w *RouterWorker) Route(ctx context.Context, req *eventmodels.FireRequest) RouteResult {
	tracer := otel.Tracer("router:fire")
	ctx, span := tracer.Start(ctx, "RouterWorker.Route", trace.WithAttributes(
		attribute.String("terminal_id", req.TargetTerminalID),
		attribute.String("symbol", req.Symbol),
	))
	defer span.End()

	result := w.route(ctx, req)

	span.SetAttributes(
		attribute.Bool("ok", result.OK),
		attribute.String("reason", result.Reason),
	)

	w.recordFire(ctx, req, result)
	return result
}

func (w *RouterWorker) route(ctx context.Context, req *eventmodels.FireRequest) RouteResult {
	if err := req.Validate(); err != nil {
		log.WithContext(ctx).Infof("RouterWorker: rejecting invalid fire request: %v", err)
		return RouteResult{Reason: RouteInvalidRequest}
	}

	now := w.now()

	binding, err := w.bindings.GetBinding(ctx, req.TargetTerminalID)
	if err != nil {
		if errors.Is(err, eventmodels.ErrBindingNotFound) {
			log.WithContext(ctx).Warnf("RouterWorker: no binding for terminal %v", req.TargetTerminalID)
			return RouteResult{Reason: RouteUnresolvedIdentity}
		}

		log.WithContext(ctx).Errorf("RouterWorker: binding lookup failed, failing closed: %v", err)
		return RouteResult{Reason: RouteBindingUnavailable}
	}

	// A heartbeat can create a binding row before anyone provisions an owner.
	// An ownerless terminal must never receive a command.
	if binding.UserID == "" {
		log.WithContext(ctx).Warnf("RouterWorker: terminal %v has no provisioned owner, refusing dispatch", req.TargetTerminalID)
		return RouteResult{Reason: RouteUnresolvedIdentity}
	}

	// The payload user_id is advisory. Ownership comes from the binding, and
	// a payload that names a different user is treated as hostile.
	if req.UserID != "" && req.UserID != binding.UserID {
		log.WithContext(ctx).Warnf("RouterWorker: payload user %v does not own terminal %v (bound to %v)", req.UserID, req.TargetTerminalID, binding.UserID)
		return RouteResult{Reason: RouteIdentityMismatch}
	}

	userID := binding.UserID
	req.UserID = userID

	if !binding.IsFresh(now, w.freshness) {
		log.WithContext(ctx).Warnf("RouterWorker: terminal %v last seen %v ago, refusing dispatch", req.TargetTerminalID, binding.Age(now))
		return RouteResult{Reason: RouteStaleTerminal}
	}

	if req.FireID == "" {
		if req.MissionID != "" {
			req.FireID = req.DeriveFireID(userID, now)
		} else {
			req.FireID = uuid.NewString()
		}
	}

	_, class, err := w.cfg.ClassFor(req.Symbol)
	if err != nil {
		log.WithContext(ctx).Infof("RouterWorker: %v", err)
		return RouteResult{Reason: RouteUnknownInstrument, FireID: req.FireID}
	}

	profile, err := w.profiles.Get(ctx, userID)
	if err != nil {
		log.WithContext(ctx).Errorf("RouterWorker: risk profile lookup failed, failing closed: %v", err)
		return RouteResult{Reason: RouteBindingUnavailable, FireID: req.FireID}
	}

	risk := eventservices.ValidateRisk(
		binding.LastEquity,
		profile,
		req.Volume,
		req.StopDistancePips(class.PipSize),
		class.PipValuePerLot,
		w.tracker.DailyLossPercent(userID, binding.LastEquity),
	)
	if !risk.Approved {
		return RouteResult{Reason: string(risk.Reason), FireID: req.FireID, SafeVolume: risk.SafeVolume}
	}

	hasCapacity, err := w.tracker.HasCapacity(ctx, userID, req.Mode)
	if err != nil {
		log.WithContext(ctx).Errorf("RouterWorker: capacity check failed, failing closed: %v", err)
		return RouteResult{Reason: RouteBindingUnavailable, FireID: req.FireID}
	}
	if !hasCapacity {
		return RouteResult{Reason: RouteSlotLimitReached, FireID: req.FireID}
	}

	// Dry run stops here: every check has run, nothing durable happens.
	if req.DryRun {
		return RouteResult{OK: true, Reason: RouteDryRun, FireID: req.FireID}
	}

	err = w.ledger.Claim(ctx, &eventmodels.IdempotencyRecord{
		FireID:     req.FireID,
		TerminalID: req.TargetTerminalID,
		UserID:     userID,
		Symbol:     req.Symbol,
		ConsumedAt: now,
	})
	if err != nil {
		if errors.Is(err, eventmodels.ErrDuplicateFire) {
			log.WithContext(ctx).Infof("RouterWorker: fire_id %v already consumed, suppressing", req.FireID)
			return RouteResult{Reason: RouteDuplicateFire, FireID: req.FireID}
		}

		// The ledger is unreachable so at-most-once cannot be proven.
		// A forwarded command is irreversible, so fail closed.
		log.WithContext(ctx).Errorf("RouterWorker: ledger claim failed, failing closed: %v", err)
		return RouteResult{Reason: RouteLedgerUnavailable, FireID: req.FireID}
	}

	cmd := eventmodels.NewFireCommand(req, userID, req.Volume, now)
	if err := w.registry.Send(req.TargetTerminalID, cmd); err != nil {
		// The claim stands: no retry, a client must issue a new fire_id to
		// try again once the terminal is back.
		log.WithContext(ctx).Warnf("RouterWorker: dispatch failed after claim: %v", err)
		return RouteResult{Reason: RouteDeliveryFailed, FireID: req.FireID}
	}

	w.addPending(PendingFire{
		FireID:   req.FireID,
		UserID:   userID,
		Mode:     req.Mode,
		Symbol:   req.Symbol,
		Volume:   req.Volume,
		IssuedAt: now,
	})

	log.WithContext(ctx).Infof("RouterWorker: dispatched fire %v to terminal %v (user=%v, %v %v %v)", req.FireID, req.TargetTerminalID, userID, req.Direction, req.Volume, req.Symbol)
	return RouteResult{OK: true, Reason: RouteDispatched, FireID: req.FireID}
}

func (w *RouterWorker) recordFire(ctx context.Context, req *eventmodels.FireRequest, result RouteResult) {
	if w.sink == nil {
		return
	}

	w.sink.Record(ctx, eventmodels.OutcomeRecord{
		Kind:       eventmodels.OutcomeKindFire,
		RecordedAt: w.now(),
		FireID:     result.FireID,
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Direction:  string(req.Direction),
		Accepted:   result.OK,
		Reason:     result.Reason,
		Volume:     req.Volume,
	})
}

func (w *RouterWorker) addPending(p PendingFire) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[p.FireID] = p
}

// ResolvePending consumes the correlation entry for a fire_id. The second
// return is false when no dispatch is awaiting that confirmation.
func (w *RouterWorker) ResolvePending(fireID string) (PendingFire, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[fireID]
	if ok {
		delete(w.pending, fireID)
	}

	return p, ok
}

func (w *RouterWorker) expirePending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-pendingFireTTL)
	for fireID, p := range w.pending {
		if p.IssuedAt.Before(cutoff) {
			log.Warnf("RouterWorker: fire %v never confirmed, expiring correlation entry", fireID)
			delete(w.pending, fireID)
		}
	}
}

func (w *RouterWorker) Start(ctx context.Context) {
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.expirePending()

			case <-ctx.Done():
				log.Info("stopping RouterWorker consumer")
				return
			}
		}
	}()
}
