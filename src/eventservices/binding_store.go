package eventservices

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

type GormBindingStore struct {
	db *gorm.DB
}

func NewGormBindingStore(db *gorm.DB) *GormBindingStore {
	return &GormBindingStore{db: db}
}

func (s *GormBindingStore) GetBinding(ctx context.Context, terminalID string) (*eventmodels.TerminalBinding, error) {
	var binding eventmodels.TerminalBinding
	if err := s.db.WithContext(ctx).Where("terminal_id = ?", terminalID).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, eventmodels.ErrBindingNotFound
		}

		return nil, fmt.Errorf("GormBindingStore:GetBinding(): failed to query: %w", err)
	}

	return &binding, nil
}

// UpsertHeartbeat refreshes last_seen_at and the equity snapshot. The owning
// user is never changed by a heartbeat: bindings are provisioned externally
// and a terminal cannot reassign itself.
func (s *GormBindingStore) UpsertHeartbeat(ctx context.Context, hb eventmodels.HeartbeatDTO) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "terminal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "last_equity", "last_balance", "updated_at"}),
	}).Create(&eventmodels.TerminalBinding{
		TerminalID:  hb.TerminalID,
		LastSeenAt:  hb.Timestamp,
		LastEquity:  hb.Equity,
		LastBalance: hb.Balance,
	}).Error

	if err != nil {
		return fmt.Errorf("GormBindingStore:UpsertHeartbeat(): failed to upsert: %w", err)
	}

	return nil
}

func (s *GormBindingStore) ListBindings(ctx context.Context) ([]eventmodels.TerminalBinding, error) {
	var bindings []eventmodels.TerminalBinding
	if err := s.db.WithContext(ctx).Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("GormBindingStore:ListBindings(): failed to query: %w", err)
	}

	return bindings, nil
}
