package eventmodels

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TerminalMessageHello     = "hello"
	TerminalMessageHeartbeat = "heartbeat"
	TerminalMessageFill      = "fill"
	TerminalMessageClose     = "close"
)

// TerminalMessageDTO is the envelope for every message a terminal sends on
// its websocket. The payload is re-parsed according to Type; terminals are
// untrusted, so each payload is validated before any state mutates.
type TerminalMessageDTO struct {
	Type string `json:"type"`
	Raw  json.RawMessage
}

func (m *TerminalMessageDTO) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("TerminalMessageDTO:UnmarshalJSON(): failed to parse envelope: %w", err)
	}

	m.Type = probe.Type
	m.Raw = append(m.Raw[:0], data...)
	return nil
}

type TerminalHelloDTO struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminal_id"`
}

// HeartbeatDTO is the periodic liveness/telemetry report. No business logic
// executes on receipt: it only refreshes the terminal binding.
type HeartbeatDTO struct {
	Type       string    `json:"type"`
	TerminalID string    `json:"terminal_id"`
	Balance    float64   `json:"balance"`
	Equity     float64   `json:"equity"`
	Timestamp  time.Time `json:"timestamp"`
}

func (h *HeartbeatDTO) Validate() error {
	if h.TerminalID == "" {
		return fmt.Errorf("HeartbeatDTO:Validate(): terminal_id is required")
	}

	return nil
}

type ExecutionStatus string

const (
	ExecutionStatusFilled   ExecutionStatus = "filled"
	ExecutionStatusRejected ExecutionStatus = "rejected"
)

// ExecutionResultDTO reports the outcome of a fire command.
type ExecutionResultDTO struct {
	Type   string          `json:"type"`
	FireID string          `json:"fire_id"`
	Status ExecutionStatus `json:"status"`
	Ticket int64           `json:"ticket"`
	Price  float64         `json:"price"`
}

func (r *ExecutionResultDTO) Validate() error {
	if r.FireID == "" {
		return fmt.Errorf("ExecutionResultDTO:Validate(): fire_id is required")
	}

	if r.Status != ExecutionStatusFilled && r.Status != ExecutionStatusRejected {
		return fmt.Errorf("ExecutionResultDTO:Validate(): invalid status: %v", r.Status)
	}

	return nil
}

// CloseEventDTO reports that a previously filled position has closed.
type CloseEventDTO struct {
	Type        string  `json:"type"`
	Ticket      int64   `json:"ticket"`
	CloseReason string  `json:"reason"`
	Pnl         float64 `json:"pnl"`
}

func (c *CloseEventDTO) Validate() error {
	if c.Ticket == 0 {
		return fmt.Errorf("CloseEventDTO:Validate(): ticket is required")
	}

	return nil
}
