package eventmodels

import "gorm.io/gorm"

// RiskProfile holds per-user limits. Tier assignment is external: this core
// only ever reads profiles.
type RiskProfile struct {
	gorm.Model              `json:"-"`
	UserID                  string  `gorm:"uniqueIndex" json:"user_id"`
	Tier                    string  `json:"tier"`
	MaxRiskPercentPerTrade  float64 `json:"max_risk_percent_per_trade"`
	DailyLossLimitPercent   float64 `json:"daily_loss_limit_percent"`
	MaxOpenSlotsManual      int     `json:"max_open_slots_manual"`
	MaxOpenSlotsAuto        int     `json:"max_open_slots_auto"`
}

func (p *RiskProfile) MaxOpenSlots(mode TradeMode) int {
	if mode == TradeModeAuto {
		return p.MaxOpenSlotsAuto
	}

	return p.MaxOpenSlotsManual
}

// DefaultRiskProfile is applied when no profile row exists for a user.
func DefaultRiskProfile(userID string) RiskProfile {
	return RiskProfile{
		UserID:                 userID,
		Tier:                   "standard",
		MaxRiskPercentPerTrade: 2.0,
		DailyLossLimitPercent:  6.0,
		MaxOpenSlotsManual:     3,
		MaxOpenSlotsAuto:       1,
	}
}
