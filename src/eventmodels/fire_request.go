package eventmodels

import (
	"fmt"
	"time"
)

// FireRequest is the inbound request to open a position on a terminal.
//
// UserID is advisory only: the router always re-derives the owning user from
// the terminal binding and never trusts the payload value. An unverified
// mapping is a direct financial-integrity risk, so this is an architectural
// rule, not an implementation detail.
type FireRequest struct {
	FireID           string    `json:"fire_id,omitempty"`
	MissionID        string    `json:"mission_id,omitempty"`
	TargetTerminalID string    `json:"target_terminal_id"`
	UserID           string    `json:"user_id,omitempty"`
	Symbol           string    `json:"symbol"`
	Direction        Direction `json:"direction"`
	Entry            float64   `json:"entry"`
	Stop             float64   `json:"stop"`
	Target           float64   `json:"target"`
	Volume           float64   `json:"volume"`
	Mode             TradeMode `json:"mode"`
	DryRun           bool      `json:"dry_run,omitempty"`
}

func (r *FireRequest) Validate() error {
	if r.TargetTerminalID == "" {
		return fmt.Errorf("FireRequest:Validate(): target_terminal_id is required")
	}

	if r.Symbol == "" {
		return fmt.Errorf("FireRequest:Validate(): symbol is required")
	}

	if r.Direction != DirectionBuy && r.Direction != DirectionSell {
		return fmt.Errorf("FireRequest:Validate(): invalid direction: %v", r.Direction)
	}

	if r.Volume <= 0 {
		return fmt.Errorf("FireRequest:Validate(): volume must be positive, got %v", r.Volume)
	}

	if r.Entry <= 0 || r.Stop <= 0 {
		return fmt.Errorf("FireRequest:Validate(): entry and stop must be positive")
	}

	if r.Mode == "" {
		r.Mode = TradeModeManual
	} else if _, err := ParseTradeMode(string(r.Mode)); err != nil {
		return fmt.Errorf("FireRequest:Validate(): %w", err)
	}

	return nil
}

// DeriveFireID builds a deterministic idempotency key for requests that do
// not carry an explicit fire_id. Requests for the same mission, user, symbol
// and 30s time bucket collapse onto the same key, so a blind client retry
// cannot produce a second forwarding.
func (r *FireRequest) DeriveFireID(userID string, now time.Time) string {
	bucket := now.UTC().Truncate(30 * time.Second).Unix()
	return fmt.Sprintf("%s-%s-%s-%d", r.MissionID, userID, r.Symbol, bucket)
}

func (r *FireRequest) StopDistancePips(pipSize float64) float64 {
	if pipSize <= 0 {
		return 0
	}

	dist := r.Entry - r.Stop
	if dist < 0 {
		dist = -dist
	}

	return dist / pipSize
}
