package eventmodels

import "time"

type OutcomeKind string

const (
	OutcomeKindAdmission OutcomeKind = "admission"
	OutcomeKindFire      OutcomeKind = "fire"
	OutcomeKindOutcome   OutcomeKind = "outcome"
)

// OutcomeRecord is one row in the append-only audit stream. The csv tags are
// used by the export tooling that feeds the external ML consumer.
type OutcomeRecord struct {
	Kind       OutcomeKind `json:"kind" csv:"kind"`
	RecordedAt time.Time   `json:"recorded_at" csv:"recorded_at"`
	SignalID   string      `json:"signal_id,omitempty" csv:"signal_id"`
	FireID     string      `json:"fire_id,omitempty" csv:"fire_id"`
	UserID     string      `json:"user_id,omitempty" csv:"user_id"`
	Symbol     string      `json:"symbol,omitempty" csv:"symbol"`
	Direction  string      `json:"direction,omitempty" csv:"direction"`
	Accepted   bool        `json:"accepted" csv:"accepted"`
	Reason     string      `json:"reason,omitempty" csv:"reason"`
	Score      float64     `json:"score,omitempty" csv:"score"`
	Volume     float64     `json:"volume,omitempty" csv:"volume"`
	Pnl        float64     `json:"pnl,omitempty" csv:"pnl"`
}
