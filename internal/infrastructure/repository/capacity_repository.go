package repository

import (
	"context"
	"errors"

	domain "signup-service/internal/domain/signup"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CapacityStore owns every write to remaining_capacity and version on
// events and slots. Each primitive is a single conditional UPDATE; when no
// row matches, the current row is reread to tell the caller why.
type CapacityStore struct {
	db *gorm.DB
}

// NewCapacityStore creates a capacity store on the given handle
func NewCapacityStore(db *gorm.DB) *CapacityStore {
	return &CapacityStore{db: db}
}

// WithTx returns a store bound to an open transaction.
func (s *CapacityStore) WithTx(tx *gorm.DB) *CapacityStore {
	return &CapacityStore{db: tx}
}

// DecrementEvent takes one unit of event capacity if the event still has
// the expected version and room left. It returns ErrCapacityExhausted,
// ErrVersionConflict or ErrEventNotFound when the update matches nothing.
func (s *CapacityStore) DecrementEvent(ctx context.Context, eventID uuid.UUID, expectedVersion int) error {
	res := s.db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ? AND version = ? AND remaining_capacity > 0", eventID, expectedVersion).
		Updates(map[string]interface{}{
			"remaining_capacity": gorm.Expr("remaining_capacity - 1"),
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return s.classify(ctx, "events", eventID, domain.ErrEventNotFound)
}

// DecrementSlot is DecrementEvent for a slot.
func (s *CapacityStore) DecrementSlot(ctx context.Context, slotID uuid.UUID, expectedVersion int) error {
	res := s.db.WithContext(ctx).Model(&domain.Slot{}).
		Where("id = ? AND version = ? AND remaining_capacity > 0", slotID, expectedVersion).
		Updates(map[string]interface{}{
			"remaining_capacity": gorm.Expr("remaining_capacity - 1"),
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return s.classify(ctx, "slots", slotID, domain.ErrSlotNotFound)
}

// IncrementEvent returns one unit of event capacity. It never raises
// remaining_capacity above capacity and reports whether a unit was returned.
func (s *CapacityStore) IncrementEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	return s.increment(ctx, &domain.Event{}, eventID)
}

// IncrementSlot returns one unit of slot capacity.
func (s *CapacityStore) IncrementSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	return s.increment(ctx, &domain.Slot{}, slotID)
}

func (s *CapacityStore) increment(ctx context.Context, model interface{}, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Model(model).
		Where("id = ? AND remaining_capacity < capacity", id).
		Updates(map[string]interface{}{
			"remaining_capacity": gorm.Expr("remaining_capacity + 1"),
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type counterRow struct {
	RemainingCapacity *int
	Version           int
}

func (s *CapacityStore) classify(ctx context.Context, table string, id uuid.UUID, notFound error) error {
	var row counterRow
	err := s.db.WithContext(ctx).Table(table).
		Select("remaining_capacity, version").
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound
		}
		return err
	}
	if row.RemainingCapacity == nil || *row.RemainingCapacity <= 0 {
		return domain.ErrCapacityExhausted
	}
	return domain.ErrVersionConflict
}
