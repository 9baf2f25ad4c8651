package eventservices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
)

type GormSlotStore struct {
	db *gorm.DB
}

func NewGormSlotStore(db *gorm.DB) *GormSlotStore {
	return &GormSlotStore{db: db}
}

func (s *GormSlotStore) Create(ctx context.Context, slot *eventmodels.Slot) error {
	if err := s.db.WithContext(ctx).Create(slot).Error; err != nil {
		return fmt.Errorf("GormSlotStore:Create(): failed to insert slot: %w", err)
	}

	return nil
}

func (s *GormSlotStore) MarkClosed(ctx context.Context, slotID string, closedAt time.Time, reason string, pnl float64) error {
	res := s.db.WithContext(ctx).Model(&eventmodels.Slot{}).
		Where("slot_id = ? AND status = ?", slotID, eventmodels.SlotStatusOpen).
		Updates(map[string]interface{}{
			"status":       eventmodels.SlotStatusClosed,
			"closed_at":    closedAt,
			"close_reason": reason,
			"pnl":          pnl,
		})

	if res.Error != nil {
		return fmt.Errorf("GormSlotStore:MarkClosed(): failed to update slot %v: %w", slotID, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("GormSlotStore:MarkClosed(): slot %v is not open", slotID)
	}

	return nil
}

func (s *GormSlotStore) FindOpenByTicket(ctx context.Context, ticket int64) (*eventmodels.Slot, error) {
	var slot eventmodels.Slot
	err := s.db.WithContext(ctx).
		Where("ticket = ? AND status = ?", ticket, eventmodels.SlotStatusOpen).
		First(&slot).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("GormSlotStore:FindOpenByTicket(): failed to query: %w", err)
	}

	return &slot, nil
}

func (s *GormSlotStore) OpenSlots(ctx context.Context) ([]eventmodels.Slot, error) {
	var slots []eventmodels.Slot
	if err := s.db.WithContext(ctx).Where("status = ?", eventmodels.SlotStatusOpen).Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("GormSlotStore:OpenSlots(): failed to query: %w", err)
	}

	return slots, nil
}

func (s *GormSlotStore) OpenSlotsOlderThan(ctx context.Context, cutoff time.Time) ([]eventmodels.Slot, error) {
	var slots []eventmodels.Slot
	err := s.db.WithContext(ctx).
		Where("status = ? AND opened_at < ?", eventmodels.SlotStatusOpen, cutoff).
		Find(&slots).Error

	if err != nil {
		return nil, fmt.Errorf("GormSlotStore:OpenSlotsOlderThan(): failed to query: %w", err)
	}

	return slots, nil
}

func (s *GormSlotStore) CountOpen(ctx context.Context, userID string, mode eventmodels.TradeMode) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&eventmodels.Slot{}).
		Where("user_id = ? AND mode = ? AND status = ?", userID, mode, eventmodels.SlotStatusOpen).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("GormSlotStore:CountOpen(): failed to query: %w", err)
	}

	return int(count), nil
}

// OpenCounts recomputes the true open-slot counts per (user, mode) directly
// from the slot set. Reconciliation overwrites cached counters with this.
func (s *GormSlotStore) OpenCounts(ctx context.Context) (map[string]map[eventmodels.TradeMode]int, error) {
	slots, err := s.OpenSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("GormSlotStore:OpenCounts(): %w", err)
	}

	counts := make(map[string]map[eventmodels.TradeMode]int)
	for _, slot := range slots {
		if counts[slot.UserID] == nil {
			counts[slot.UserID] = make(map[eventmodels.TradeMode]int)
		}
		counts[slot.UserID][slot.Mode]++
	}

	return counts, nil
}
