package repository

import (
	"context"
	"errors"

	domain "signup-service/internal/domain/signup"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRepository implements EventRepository using GORM
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new GORM event repository
func NewEventRepository(db *gorm.DB) domain.EventRepository {
	return &EventRepository{
		db: db,
	}
}

// Create inserts an event together with its slots
func (r *EventRepository) Create(ctx context.Context, event *domain.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByID retrieves an event and its slots by ID
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return loadEvent(r.db.WithContext(ctx), id)
}

// ListPendingPromotion returns events that have free capacity and someone
// waiting for it
func (r *EventRepository) ListPendingPromotion(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	waiting := r.db.Model(&domain.SignUp{}).
		Select("1").
		Where("sign_ups.event_id = events.id AND sign_ups.active = ? AND sign_ups.participation_status = ?",
			true, domain.StatusOnWaitlist)
	err := r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("remaining_capacity > 0 AND EXISTS (?)", waiting).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func loadEvent(db *gorm.DB, id uuid.UUID) (*domain.Event, error) {
	var event domain.Event
	err := db.Preload("Slots", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}
