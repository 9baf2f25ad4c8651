package eventservices

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

// GormRiskProfileStore reads tier limits from the risk_profiles table. Tier
// management lives outside this core; a missing row falls back to the
// default profile rather than blocking the trade path.
type GormRiskProfileStore struct {
	db *gorm.DB
}

func NewGormRiskProfileStore(db *gorm.DB) *GormRiskProfileStore {
	return &GormRiskProfileStore{db: db}
}

func (s *GormRiskProfileStore) Get(ctx context.Context, userID string) (eventmodels.RiskProfile, error) {
	var profile eventmodels.RiskProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return eventmodels.DefaultRiskProfile(userID), nil
		}

		return eventmodels.RiskProfile{}, fmt.Errorf("GormRiskProfileStore:Get(): failed to query: %w", err)
	}

	return profile, nil
}
