package eventservices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

// In-memory store implementations. They satisfy the same interfaces as the
// gorm-backed ones and are used by tests and by local development without a
// database.

type InMemoryIdempotencyLedger struct {
	mu       sync.Mutex
	consumed map[string]eventmodels.IdempotencyRecord

	// FailNext simulates store unavailability: the next call returns an
	// error so fail-closed behavior can be exercised.
	FailNext bool
}

func NewInMemoryIdempotencyLedger() *InMemoryIdempotencyLedger {
	return &InMemoryIdempotencyLedger{
		consumed: make(map[string]eventmodels.IdempotencyRecord),
	}
}

func (l *InMemoryIdempotencyLedger) Claim(ctx context.Context, record *eventmodels.IdempotencyRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailNext {
		l.FailNext = false
		return fmt.Errorf("InMemoryIdempotencyLedger:Claim(): store unavailable")
	}

	if _, ok := l.consumed[record.FireID]; ok {
		return eventmodels.ErrDuplicateFire
	}

	l.consumed[record.FireID] = *record
	return nil
}

func (l *InMemoryIdempotencyLedger) IsConsumed(ctx context.Context, fireID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.consumed[fireID]
	return ok, nil
}

type InMemoryBindingStore struct {
	mu       sync.RWMutex
	bindings map[string]eventmodels.TerminalBinding
	users    map[string]string // terminal_id -> user_id, provisioned out of band
}

func NewInMemoryBindingStore() *InMemoryBindingStore {
	return &InMemoryBindingStore{
		bindings: make(map[string]eventmodels.TerminalBinding),
		users:    make(map[string]string),
	}
}

// Provision assigns a terminal to a user, standing in for the external
// binding management.
func (s *InMemoryBindingStore) Provision(terminalID, userID string, lastSeen time.Time, equity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[terminalID] = userID
	s.bindings[terminalID] = eventmodels.TerminalBinding{
		TerminalID: terminalID,
		UserID:     userID,
		LastSeenAt: lastSeen,
		LastEquity: equity,
	}
}

func (s *InMemoryBindingStore) GetBinding(ctx context.Context, terminalID string) (*eventmodels.TerminalBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, ok := s.bindings[terminalID]
	if !ok {
		return nil, eventmodels.ErrBindingNotFound
	}

	return &binding, nil
}

func (s *InMemoryBindingStore) UpsertHeartbeat(ctx context.Context, hb eventmodels.HeartbeatDTO) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding := s.bindings[hb.TerminalID]
	binding.TerminalID = hb.TerminalID
	binding.UserID = s.users[hb.TerminalID]
	binding.LastSeenAt = hb.Timestamp
	binding.LastEquity = hb.Equity
	binding.LastBalance = hb.Balance
	s.bindings[hb.TerminalID] = binding

	return nil
}

func (s *InMemoryBindingStore) ListBindings(ctx context.Context) ([]eventmodels.TerminalBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bindings := make([]eventmodels.TerminalBinding, 0, len(s.bindings))
	for _, b := range s.bindings {
		bindings = append(bindings, b)
	}

	return bindings, nil
}

type InMemorySlotStore struct {
	mu    sync.Mutex
	slots map[string]*eventmodels.Slot
}

func NewInMemorySlotStore() *InMemorySlotStore {
	return &InMemorySlotStore{
		slots: make(map[string]*eventmodels.Slot),
	}
}

func (s *InMemorySlotStore) Create(ctx context.Context, slot *eventmodels.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[slot.SlotID]; ok {
		return fmt.Errorf("InMemorySlotStore:Create(): slot %v already exists", slot.SlotID)
	}

	copied := *slot
	s.slots[slot.SlotID] = &copied
	return nil
}

func (s *InMemorySlotStore) MarkClosed(ctx context.Context, slotID string, closedAt time.Time, reason string, pnl float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok || slot.Status != eventmodels.SlotStatusOpen {
		return fmt.Errorf("InMemorySlotStore:MarkClosed(): slot %v is not open", slotID)
	}

	slot.Status = eventmodels.SlotStatusClosed
	slot.ClosedAt = &closedAt
	slot.CloseReason = reason
	slot.Pnl = pnl
	return nil
}

func (s *InMemorySlotStore) FindOpenByTicket(ctx context.Context, ticket int64) (*eventmodels.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.Ticket == ticket && slot.Status == eventmodels.SlotStatusOpen {
			copied := *slot
			return &copied, nil
		}
	}

	return nil, nil
}

func (s *InMemorySlotStore) OpenSlots(ctx context.Context) ([]eventmodels.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []eventmodels.Slot
	for _, slot := range s.slots {
		if slot.Status == eventmodels.SlotStatusOpen {
			open = append(open, *slot)
		}
	}

	return open, nil
}

func (s *InMemorySlotStore) OpenSlotsOlderThan(ctx context.Context, cutoff time.Time) ([]eventmodels.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []eventmodels.Slot
	for _, slot := range s.slots {
		if slot.Status == eventmodels.SlotStatusOpen && slot.OpenedAt.Before(cutoff) {
			stale = append(stale, *slot)
		}
	}

	return stale, nil
}

func (s *InMemorySlotStore) CountOpen(ctx context.Context, userID string, mode eventmodels.TradeMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, slot := range s.slots {
		if slot.UserID == userID && slot.Mode == mode && slot.Status == eventmodels.SlotStatusOpen {
			count++
		}
	}

	return count, nil
}

func (s *InMemorySlotStore) OpenCounts(ctx context.Context) (map[string]map[eventmodels.TradeMode]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]map[eventmodels.TradeMode]int)
	for _, slot := range s.slots {
		if slot.Status != eventmodels.SlotStatusOpen {
			continue
		}
		if counts[slot.UserID] == nil {
			counts[slot.UserID] = make(map[eventmodels.TradeMode]int)
		}
		counts[slot.UserID][slot.Mode]++
	}

	return counts, nil
}

type StaticRiskProfileStore struct {
	Profiles map[string]eventmodels.RiskProfile
}

func NewStaticRiskProfileStore() *StaticRiskProfileStore {
	return &StaticRiskProfileStore{
		Profiles: make(map[string]eventmodels.RiskProfile),
	}
}

func (s *StaticRiskProfileStore) Get(ctx context.Context, userID string) (eventmodels.RiskProfile, error) {
	if profile, ok := s.Profiles[userID]; ok {
		return profile, nil
	}

	return eventmodels.DefaultRiskProfile(userID), nil
}

// InMemoryAuditSink collects records for assertions in tests.
type InMemoryAuditSink struct {
	mu      sync.Mutex
	Records []eventmodels.OutcomeRecord
}

func NewInMemoryAuditSink() *InMemoryAuditSink {
	return &InMemoryAuditSink{}
}

func (s *InMemoryAuditSink) Record(ctx context.Context, record eventmodels.OutcomeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Records = append(s.Records, record)
}

func (s *InMemoryAuditSink) ByKind(kind eventmodels.OutcomeKind) []eventmodels.OutcomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []eventmodels.OutcomeRecord
	for _, r := range s.Records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}

	return out
}
