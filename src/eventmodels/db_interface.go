package eventmodels

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateFire is returned when a fire_id has already been claimed.
var ErrDuplicateFire = errors.New("fire_id already consumed")

// ErrBindingNotFound is returned when no binding exists for a terminal.
var ErrBindingNotFound = errors.New("terminal binding not found")

// ErrSlotLimitReached is returned when a user is at their concurrency cap for
// the requested mode.
var ErrSlotLimitReached = errors.New("slot limit reached")

// IdempotencyLedger is the durable at-most-once record of forwarded fire
// commands. Claim must be atomic: for a given fire_id it succeeds exactly
// once across all callers and processes.
type IdempotencyLedger interface {
	Claim(ctx context.Context, record *IdempotencyRecord) error
	IsConsumed(ctx context.Context, fireID string) (bool, error)
}

// BindingStore resolves terminal identities to their owning users. The
// last_seen_at field tolerates a few seconds of staleness; the freshness
// threshold is on the order of minutes.
type BindingStore interface {
	GetBinding(ctx context.Context, terminalID string) (*TerminalBinding, error)
	UpsertHeartbeat(ctx context.Context, hb HeartbeatDTO) error
	ListBindings(ctx context.Context) ([]TerminalBinding, error)
}

// SlotStore owns the persisted slot set, the ground truth for open-position
// accounting.
type SlotStore interface {
	Create(ctx context.Context, slot *Slot) error
	MarkClosed(ctx context.Context, slotID string, closedAt time.Time, reason string, pnl float64) error
	FindOpenByTicket(ctx context.Context, ticket int64) (*Slot, error)
	OpenSlots(ctx context.Context) ([]Slot, error)
	OpenSlotsOlderThan(ctx context.Context, cutoff time.Time) ([]Slot, error)
	CountOpen(ctx context.Context, userID string, mode TradeMode) (int, error)
	OpenCounts(ctx context.Context) (map[string]map[TradeMode]int, error)
}

// RiskProfileStore reads per-user tier limits. Missing users fall back to the
// default profile.
type RiskProfileStore interface {
	Get(ctx context.Context, userID string) (RiskProfile, error)
}

// AuditSink is the append-only destination for admission decisions, fire
// commands and trade outcomes. Write-only from this core's perspective.
type AuditSink interface {
	Record(ctx context.Context, record OutcomeRecord)
}
