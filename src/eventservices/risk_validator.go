package eventservices

import (
	"math"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

type RiskReason string

const (
	RiskApproved         RiskReason = "approved"
	RiskDeniedTierCap    RiskReason = "tier_cap_exceeded"
	RiskDeniedDailyLoss  RiskReason = "daily_loss_limit"
	RiskDeniedFloor      RiskReason = "capital_floor"
	RiskDeniedZeroBudget RiskReason = "no_remaining_risk_budget"
	RiskDeniedInput      RiskReason = "invalid_input"
)

type RiskDecision struct {
	Approved   bool
	Reason     RiskReason
	SafeVolume float64
}

// CapitalFloorUSD is the absolute minimum an account may be projected to
// fall to, even when the percentage caps are satisfied.
const CapitalFloorUSD = 100.0

const volumeStep = 0.01

// ValidateRisk applies the three hard caps in order: per-trade tier cap,
// daily loss limit, capital floor. The first failing check determines the
// reason and the suggested safe volume. Pure function: no I/O, no mutation.
func ValidateRisk(
	accountBalance float64,
	profile eventmodels.RiskProfile,
	proposedVolume float64,
	stopDistancePips float64,
	pipValuePerLot float64,
	dailyLossPercentSoFar float64,
) RiskDecision {
	if accountBalance <= 0 || proposedVolume <= 0 || stopDistancePips <= 0 || pipValuePerLot <= 0 {
		return RiskDecision{Approved: false, Reason: RiskDeniedInput}
	}

	lossAtStop := proposedVolume * stopDistancePips * pipValuePerLot
	riskPercent := lossAtStop / accountBalance * 100

	// Hard cap 1: per-trade tier cap. Never silently clamp; report the
	// largest volume that satisfies the cap instead.
	if riskPercent > profile.MaxRiskPercentPerTrade {
		safe := volumeForRiskPercent(accountBalance, profile.MaxRiskPercentPerTrade, stopDistancePips, pipValuePerLot)
		return RiskDecision{Approved: false, Reason: RiskDeniedTierCap, SafeVolume: safe}
	}

	// Hard cap 2: cumulative same-day realized loss plus this trade's risk.
	remaining := profile.DailyLossLimitPercent - dailyLossPercentSoFar
	if remaining <= 0 {
		return RiskDecision{Approved: false, Reason: RiskDeniedZeroBudget}
	}
	if riskPercent > remaining {
		safe := volumeForRiskPercent(accountBalance, remaining, stopDistancePips, pipValuePerLot)
		if safe <= 0 {
			return RiskDecision{Approved: false, Reason: RiskDeniedZeroBudget}
		}
		return RiskDecision{Approved: false, Reason: RiskDeniedDailyLoss, SafeVolume: safe}
	}

	// Hard cap 3: the account must never be projected below the capital
	// floor if the stop is hit.
	if accountBalance-lossAtStop < CapitalFloorUSD {
		maxLoss := accountBalance - CapitalFloorUSD
		if maxLoss <= 0 {
			return RiskDecision{Approved: false, Reason: RiskDeniedFloor}
		}

		safe := roundDownToStep(maxLoss / (stopDistancePips * pipValuePerLot))
		if safe <= 0 {
			return RiskDecision{Approved: false, Reason: RiskDeniedFloor}
		}
		return RiskDecision{Approved: false, Reason: RiskDeniedFloor, SafeVolume: safe}
	}

	return RiskDecision{Approved: true, Reason: RiskApproved, SafeVolume: proposedVolume}
}

func volumeForRiskPercent(accountBalance, riskPercent, stopDistancePips, pipValuePerLot float64) float64 {
	allowedLoss := accountBalance * riskPercent / 100
	return roundDownToStep(allowedLoss / (stopDistancePips * pipValuePerLot))
}

func roundDownToStep(volume float64) float64 {
	steps := math.Floor(volume/volumeStep + 1e-9)
	return steps * volumeStep
}
