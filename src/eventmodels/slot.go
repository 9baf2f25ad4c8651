package eventmodels

import (
	"time"

	"gorm.io/gorm"
)

type SlotStatus string

const (
	SlotStatusOpen   SlotStatus = "OPEN"
	SlotStatusClosed SlotStatus = "CLOSED"
)

// Slot is a tracked open position counted against a user's concurrency
// limit. The slot set is the ground truth; cached per-user counters are
// reconciled against COUNT(*) WHERE status=OPEN and always lose on mismatch.
type Slot struct {
	gorm.Model  `json:"-"`
	SlotID      string     `gorm:"uniqueIndex" json:"slot_id"`
	FireID      string     `gorm:"index" json:"fire_id"`
	Ticket      int64      `gorm:"index" json:"ticket"`
	UserID      string     `gorm:"index" json:"user_id"`
	Mode        TradeMode  `json:"mode"`
	Symbol      string     `json:"symbol"`
	OpenedAt    time.Time  `json:"opened_at"`
	Status      SlotStatus `gorm:"index" json:"status"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
	Pnl         float64    `json:"pnl"`
}

func (s *Slot) IsOpen() bool {
	return s.Status == SlotStatusOpen
}

// StaleAt reports whether the slot has been open longer than maxAge. A
// position that old with no close signal indicates drift or an unreported
// closure, so the sweep force-closes it.
func (s *Slot) StaleAt(now time.Time, maxAge time.Duration) bool {
	return s.IsOpen() && now.Sub(s.OpenedAt) > maxAge
}

const CloseReasonStaleSweep = "stale_sweep"
