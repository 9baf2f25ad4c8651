package eventservices

import (
	"time"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

// Trading day boundaries in UTC. The day rolls over at 22:00 UTC (17:00 New
// York), which is also when the Asian session opens.
const tradingDayRolloverHourUTC = 22

// SessionAt maps a wall-clock time to the named trading session.
//
//	ASIAN   22:00–07:00
//	LONDON  07:00–12:00
//	OVERLAP 12:00–16:00
//	NY      16:00–22:00
func SessionAt(t time.Time) eventmodels.TradingSession {
	h := t.UTC().Hour()

	switch {
	case h >= tradingDayRolloverHourUTC || h < 7:
		return eventmodels.TradingSessionAsian
	case h < 12:
		return eventmodels.TradingSessionLondon
	case h < 16:
		return eventmodels.TradingSessionOverlap
	default:
		return eventmodels.TradingSessionNewYork
	}
}

// ActiveHoursRemaining returns the fractional hours left in the current
// trading day. Admission pacing divides the remaining quota by this value.
func ActiveHoursRemaining(t time.Time) float64 {
	utc := t.UTC()

	rollover := time.Date(utc.Year(), utc.Month(), utc.Day(), tradingDayRolloverHourUTC, 0, 0, 0, time.UTC)
	if !utc.Before(rollover) {
		rollover = rollover.Add(24 * time.Hour)
	}

	return rollover.Sub(utc).Hours()
}
