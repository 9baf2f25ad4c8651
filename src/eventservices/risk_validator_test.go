package eventservices

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

func standardProfile() eventmodels.RiskProfile {
	return eventmodels.RiskProfile{
		UserID:                 "user-1",
		Tier:                   "standard",
		MaxRiskPercentPerTrade: 2.0,
		DailyLossLimitPercent:  6.0,
		MaxOpenSlotsManual:     3,
		MaxOpenSlotsAuto:       1,
	}
}

func TestValidateRisk(t *testing.T) {
	t.Run("approves a trade within every cap", func(t *testing.T) {
		// $0.10 lots, 15 pips, $10/pip/lot implies a $15 loss on a $1000
		// account, 1.5% risk.
		decision := ValidateRisk(1000, standardProfile(), 0.10, 15, 10, 0)

		assert.True(t, decision.Approved)
		assert.Equal(t, RiskApproved, decision.Reason)
		assert.Equal(t, 0.10, decision.SafeVolume)
	})

	t.Run("denies over the tier cap with a safe volume", func(t *testing.T) {
		// 30 pips at $10/pip/lot: 0.10 lots implies a $30 loss, 3% of the
		// $1000 account against a 2% cap.
		decision := ValidateRisk(1000, standardProfile(), 0.10, 30, 10, 0)

		assert.False(t, decision.Approved)
		assert.Equal(t, RiskDeniedTierCap, decision.Reason)

		// Largest volume satisfying the cap: $20 / $300 per lot = 0.0667,
		// rounded down to the volume step.
		assert.InDelta(t, 0.06, decision.SafeVolume, 1e-9)

		// The suggestion itself must satisfy the cap it was computed for.
		resubmit := ValidateRisk(1000, standardProfile(), decision.SafeVolume, 30, 10, 0)
		assert.True(t, resubmit.Approved)
	})

	t.Run("denies when the day's losses leave too little budget", func(t *testing.T) {
		// 5% already lost today against a 6% daily limit leaves 1%; the
		// proposed trade risks 1.5%.
		decision := ValidateRisk(1000, standardProfile(), 0.10, 15, 10, 5.0)

		assert.False(t, decision.Approved)
		assert.Equal(t, RiskDeniedDailyLoss, decision.Reason)
		assert.InDelta(t, 0.06, decision.SafeVolume, 1e-9) // $10 / $150 per lot
	})

	t.Run("denies outright when the daily budget is exhausted", func(t *testing.T) {
		decision := ValidateRisk(1000, standardProfile(), 0.10, 15, 10, 6.0)

		assert.False(t, decision.Approved)
		assert.Equal(t, RiskDeniedZeroBudget, decision.Reason)
		assert.Zero(t, decision.SafeVolume)
	})

	t.Run("denies when the stop would breach the capital floor", func(t *testing.T) {
		// arrange: generous percentage caps so only the floor binds
		profile := standardProfile()
		profile.MaxRiskPercentPerTrade = 50
		profile.DailyLossLimitPercent = 100

		// act: $110 account, 0.20 lots at 10 pips and $10/pip/lot risks $20,
		// projecting the account to $90
		decision := ValidateRisk(110, profile, 0.20, 10, 10, 0)

		// assert
		assert.False(t, decision.Approved)
		assert.Equal(t, RiskDeniedFloor, decision.Reason)
		assert.InDelta(t, 0.10, decision.SafeVolume, 1e-9) // loses exactly $10, landing on the floor
	})

	t.Run("denies with no suggestion when the account is at the floor", func(t *testing.T) {
		profile := standardProfile()
		profile.MaxRiskPercentPerTrade = 50
		profile.DailyLossLimitPercent = 100

		decision := ValidateRisk(100, profile, 0.01, 10, 10, 0)

		assert.False(t, decision.Approved)
		assert.Equal(t, RiskDeniedFloor, decision.Reason)
		assert.Zero(t, decision.SafeVolume)
	})

	t.Run("rejects nonsensical inputs", func(t *testing.T) {
		assert.Equal(t, RiskDeniedInput, ValidateRisk(0, standardProfile(), 0.10, 15, 10, 0).Reason)
		assert.Equal(t, RiskDeniedInput, ValidateRisk(1000, standardProfile(), 0, 15, 10, 0).Reason)
		assert.Equal(t, RiskDeniedInput, ValidateRisk(1000, standardProfile(), 0.10, 0, 10, 0).Reason)
	})
}
