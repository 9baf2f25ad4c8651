package eventmodels

import (
	"fmt"
	"strings"
	"time"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Signal is a candidate trade idea produced by the external detection engine.
// It is immutable once created: the pipeline passes it by value and never
// mutates it.
type Signal struct {
	SignalID       string    `json:"signal_id"`
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	Entry          float64   `json:"entry"`
	Stop           float64   `json:"stop"`
	Target         float64   `json:"target"`
	Score          float64   `json:"score"`
	ExpectedValue  float64   `json:"expected_value"`
	RarityQuantile float64   `json:"rarity_quantile"`
	Pattern        string    `json:"pattern"`
	Session        string    `json:"session"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Signal) Validate() error {
	if s.SignalID == "" {
		return fmt.Errorf("Signal:Validate(): signal_id is required")
	}

	if s.Symbol == "" {
		return fmt.Errorf("Signal:Validate(): symbol is required")
	}

	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return fmt.Errorf("Signal:Validate(): invalid direction: %v", s.Direction)
	}

	if s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("Signal:Validate(): score %v out of range [0, 100]", s.Score)
	}

	if s.Entry <= 0 || s.Stop <= 0 {
		return fmt.Errorf("Signal:Validate(): entry and stop must be positive")
	}

	return nil
}

// DedupeKey identifies near-duplicate signals. Two signals with the same
// instrument class, direction and pattern are considered duplicates within
// the admission suppression window, regardless of their exact symbol.
func (s *Signal) DedupeKey(instrumentClass string) string {
	return fmt.Sprintf("%s:%s:%s", instrumentClass, s.Direction, strings.ToUpper(s.Pattern))
}

func (s *Signal) StopDistancePips(pipSize float64) float64 {
	if pipSize <= 0 {
		return 0
	}

	dist := s.Entry - s.Stop
	if dist < 0 {
		dist = -dist
	}

	return dist / pipSize
}
