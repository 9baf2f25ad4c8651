package eventmodels

import "fmt"

type TradeMode string

const (
	TradeModeManual TradeMode = "MANUAL"
	TradeModeAuto   TradeMode = "AUTO"
)

func ParseTradeMode(s string) (TradeMode, error) {
	switch TradeMode(s) {
	case TradeModeManual:
		return TradeModeManual, nil
	case TradeModeAuto:
		return TradeModeAuto, nil
	default:
		return "", fmt.Errorf("ParseTradeMode: unknown mode: %v", s)
	}
}
