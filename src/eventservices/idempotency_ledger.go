package eventservices

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

// GormIdempotencyLedger backs the at-most-once guarantee with a postgres
// unique index on fire_id. The insert is the claim: losing the race surfaces
// as a duplicate-key error.
type GormIdempotencyLedger struct {
	db *gorm.DB
}

func NewGormIdempotencyLedger(db *gorm.DB) *GormIdempotencyLedger {
	return &GormIdempotencyLedger{db: db}
}

func (l *GormIdempotencyLedger) Claim(ctx context.Context, record *eventmodels.IdempotencyRecord) error {
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return eventmodels.ErrDuplicateFire
		}

		return fmt.Errorf("GormIdempotencyLedger:Claim(): failed to insert record: %w", err)
	}

	return nil
}

func (l *GormIdempotencyLedger) IsConsumed(ctx context.Context, fireID string) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&eventmodels.IdempotencyRecord{}).Where("fire_id = ?", fireID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("GormIdempotencyLedger:IsConsumed(): failed to query: %w", err)
	}

	return count > 0, nil
}
