package eventmodels

import (
	"time"

	"gorm.io/gorm"
)

// TerminalBinding maps a terminal identity to its owning user. LastSeenAt and
// LastEquity are refreshed by periodic liveness reports; the router reads the
// binding to resolve ownership and to gate on freshness.
type TerminalBinding struct {
	gorm.Model `json:"-"`
	TerminalID  string    `gorm:"uniqueIndex" json:"terminal_id"`
	UserID      string    `gorm:"index" json:"user_id"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	LastEquity  float64   `json:"last_equity"`
	LastBalance float64   `json:"last_balance"`
}

func (b *TerminalBinding) Age(now time.Time) time.Duration {
	return now.Sub(b.LastSeenAt)
}

func (b *TerminalBinding) IsFresh(now time.Time, threshold time.Duration) bool {
	return b.Age(now) <= threshold
}
