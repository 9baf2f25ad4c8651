package eventmodels

import "time"

type AdmissionReason string

const (
	AdmissionAccepted      AdmissionReason = "accepted"
	AdmissionImmediatePass AdmissionReason = "immediate_pass"
	AdmissionTrickle       AdmissionReason = "trickle"
	AdmissionRejectQuota   AdmissionReason = "quota"
	AdmissionRejectDup     AdmissionReason = "duplicate"
	AdmissionRejectReplay  AdmissionReason = "replay"
	AdmissionRejectScore   AdmissionReason = "low_score"
	AdmissionRejectRate    AdmissionReason = "rate_limited"
	AdmissionRejectGate    AdmissionReason = "gate"
	AdmissionRejectInvalid AdmissionReason = "invalid"
)

// AdmissionDecision is derived state: it is published for audit but never
// persisted as a source of truth.
type AdmissionDecision struct {
	SignalID  string          `json:"signal_id"`
	Accepted  bool            `json:"accepted"`
	Reason    AdmissionReason `json:"reason"`
	Class     string          `json:"class"`
	Score     float64         `json:"score"`
	DecidedAt time.Time       `json:"decided_at"`
}
