package eventmodels

import "time"

// FireCommand is the outbound instruction pushed to a terminal. Exactly one
// instance may ever be delivered per FireID.
type FireCommand struct {
	Type             string    `json:"type"` // always "fire"
	FireID           string    `json:"fire_id"`
	TargetTerminalID string    `json:"target_terminal_id"`
	UserID           string    `json:"user_id"`
	Symbol           string    `json:"symbol"`
	Direction        Direction `json:"direction"`
	Entry            float64   `json:"entry"`
	Stop             float64   `json:"stop"`
	Target           float64   `json:"target"`
	Volume           float64   `json:"volume"`
	Mode             TradeMode `json:"mode"`
	IssuedAt         time.Time `json:"issued_at"`
}

const FireCommandType = "fire"

func NewFireCommand(req *FireRequest, userID string, volume float64, issuedAt time.Time) FireCommand {
	return FireCommand{
		Type:             FireCommandType,
		FireID:           req.FireID,
		TargetTerminalID: req.TargetTerminalID,
		UserID:           userID,
		Symbol:           req.Symbol,
		Direction:        req.Direction,
		Entry:            req.Entry,
		Stop:             req.Stop,
		Target:           req.Target,
		Volume:           volume,
		Mode:             req.Mode,
		IssuedAt:         issuedAt,
	}
}
