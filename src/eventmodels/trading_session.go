package eventmodels

type TradingSession string

const (
	TradingSessionAsian   TradingSession = "ASIAN"
	TradingSessionLondon  TradingSession = "LONDON"
	TradingSessionOverlap TradingSession = "OVERLAP"
	TradingSessionNewYork TradingSession = "NY"
)

func (s TradingSession) String() string {
	return string(s)
}
