package eventmodels

import (
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord is the durable claim on a fire_id. The unique index is
// what actually guarantees at-most-once forwarding: two concurrent routes for
// the same fire_id race on the insert and exactly one wins.
type IdempotencyRecord struct {
	gorm.Model `json:"-"`
	FireID     string    `gorm:"uniqueIndex" json:"fire_id"`
	TerminalID string    `json:"terminal_id"`
	UserID     string    `json:"user_id"`
	Symbol     string    `json:"symbol"`
	ConsumedAt time.Time `json:"consumed_at"`
}
