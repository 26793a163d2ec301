package repository

import (
	"context"
	"errors"
	"fmt"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errSlotsFull means eligible slots exist but none has room. Direct sign-ups
// treat it as exhaustion, promotions as "not this candidate".
var errSlotsFull = errors.New("eligible slots are full")

// SignUpRepository implements SignUpRepository using GORM
type SignUpRepository struct {
	db       *gorm.DB
	capacity *CapacityStore
}

// NewSignUpRepository creates a new GORM sign-up repository
func NewSignUpRepository(db *gorm.DB) domain.SignUpRepository {
	return &SignUpRepository{
		db:       db,
		capacity: NewCapacityStore(db),
	}
}

// GetByID retrieves a sign-up by ID
func (r *SignUpRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SignUp, error) {
	return findSignUp(r.db.WithContext(ctx), "id = ?", id)
}

// GetActive retrieves the live sign-up of a user for an event
func (r *SignUpRepository) GetActive(ctx context.Context, userID, eventID uuid.UUID) (*domain.SignUp, error) {
	return findSignUp(r.db.WithContext(ctx), "user_id = ? AND event_id = ? AND active = ?", userID, eventID, true)
}

// GetLatest retrieves the most recent sign-up of a user for an event,
// active or not
func (r *SignUpRepository) GetLatest(ctx context.Context, userID, eventID uuid.UUID) (*domain.SignUp, error) {
	var signUp domain.SignUp
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Order("created_at DESC, id DESC").
		First(&signUp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &signUp, nil
}

// ListByEvent retrieves the sign-ups of an event, optionally filtered by status
func (r *SignUpRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, status *domain.ParticipationStatus) ([]*domain.SignUp, error) {
	var signUps []*domain.SignUp
	q := r.db.WithContext(ctx).Where("event_id = ?", eventID)
	if status != nil {
		q = q.Where("participation_status = ?", *status)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&signUps).Error; err != nil {
		return nil, err
	}
	return signUps, nil
}

// ListWaitlisted returns live waitlisted sign-ups in FIFO order, keyset
// paged on (created_at, id)
func (r *SignUpRepository) ListWaitlisted(ctx context.Context, eventID uuid.UUID, after *domain.WaitlistCursor, limit int) ([]*domain.SignUp, error) {
	var signUps []*domain.SignUp
	q := r.db.WithContext(ctx).
		Where("event_id = ? AND active = ? AND participation_status = ?", eventID, true, domain.StatusOnWaitlist)
	if after != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	q = q.Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&signUps).Error; err != nil {
		return nil, err
	}
	return signUps, nil
}

// CountWaitlistedAhead counts live waitlisted sign-ups ahead of the given one
func (r *SignUpRepository) CountWaitlistedAhead(ctx context.Context, signUp *domain.SignUp) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SignUp{}).
		Where("event_id = ? AND active = ? AND participation_status = ?", signUp.EventID, true, domain.StatusOnWaitlist).
		Where("(created_at < ? OR (created_at = ? AND id < ?))", signUp.CreatedAt, signUp.CreatedAt, signUp.ID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateConfirmed reserves capacity and inserts a confirmed sign-up in one
// transaction
func (r *SignUpRepository) CreateConfirmed(ctx context.Context, req domain.ConfirmRequest) (*domain.SignUp, error) {
	var created *domain.SignUp
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findSignUp(tx, "user_id = ? AND event_id = ? AND active = ?", req.UserID, req.EventID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadySignedUp
		}

		event, err := loadEvent(tx, req.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return domain.ErrEventNotFound
		}

		slotID, err := r.reserve(ctx, tx, event, req.GradeYear)
		if errors.Is(err, errSlotsFull) {
			return domain.ErrCapacityExhausted
		}
		if err != nil {
			return err
		}

		if err := placeOrder(ctx, tx, event, req.PlaceOrder); err != nil {
			return err
		}

		signUp := &domain.SignUp{
			UserID:              req.UserID,
			EventID:             req.EventID,
			SlotID:              slotID,
			ParticipationStatus: domain.StatusConfirmed,
			Active:              true,
			Version:             1,
		}
		if err := tx.Create(signUp).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadySignedUp
			}
			return err
		}
		created = signUp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateWaitlisted inserts a waitlisted sign-up without touching capacity
func (r *SignUpRepository) CreateWaitlisted(ctx context.Context, userID, eventID uuid.UUID) (*domain.SignUp, error) {
	var created *domain.SignUp
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findSignUp(tx, "user_id = ? AND event_id = ? AND active = ?", userID, eventID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadySignedUp
		}

		signUp := &domain.SignUp{
			UserID:              userID,
			EventID:             eventID,
			ParticipationStatus: domain.StatusOnWaitlist,
			Active:              true,
			Version:             1,
		}
		if err := tx.Create(signUp).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadySignedUp
			}
			return err
		}
		created = signUp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Promote confirms a waitlisted sign-up, reserving capacity the same way a
// direct sign-up does
func (r *SignUpRepository) Promote(ctx context.Context, req domain.PromoteRequest) (*domain.SignUp, error) {
	var promoted *domain.SignUp
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		signUp, err := findSignUp(tx, "id = ?", req.SignUpID)
		if err != nil {
			return err
		}
		if signUp == nil {
			return domain.ErrSignUpNotFound
		}
		if !signUp.Active || signUp.ParticipationStatus != domain.StatusOnWaitlist {
			return domain.ErrNotPromotable
		}

		event, err := loadEvent(tx, signUp.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return domain.ErrEventNotFound
		}

		slotID, err := r.reserve(ctx, tx, event, req.GradeYear)
		if errors.Is(err, errSlotsFull) {
			return domain.ErrNoEligibleSlot
		}
		if err != nil {
			return err
		}

		if err := placeOrder(ctx, tx, event, req.PlaceOrder); err != nil {
			return err
		}

		res := tx.Model(&domain.SignUp{}).
			Where("id = ? AND version = ? AND active = ? AND participation_status = ?",
				signUp.ID, signUp.Version, true, domain.StatusOnWaitlist).
			Updates(map[string]interface{}{
				"participation_status": domain.StatusConfirmed,
				"slot_id":              slotID,
				"version":              gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}

		promoted, err = findSignUp(tx, "id = ?", signUp.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// Terminate moves a live sign-up to RETRACTED or REMOVED and returns any
// capacity it held
func (r *SignUpRepository) Terminate(ctx context.Context, id uuid.UUID, status domain.ParticipationStatus) (*domain.TerminateResult, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("cannot terminate sign-up into status %s", status)
	}

	var result *domain.TerminateResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		signUp, err := findSignUp(tx, "id = ?", id)
		if err != nil {
			return err
		}
		if signUp == nil {
			return domain.ErrSignUpNotFound
		}
		if signUp.ParticipationStatus.IsTerminal() {
			result = &domain.TerminateResult{SignUp: signUp}
			return nil
		}

		released := false
		if signUp.ParticipationStatus == domain.StatusConfirmed {
			released, err = r.release(ctx, tx, signUp)
			if err != nil {
				return err
			}
		}

		res := tx.Model(&domain.SignUp{}).
			Where("id = ? AND version = ?", signUp.ID, signUp.Version).
			Updates(map[string]interface{}{
				"participation_status": status,
				"active":               false,
				"slot_id":              nil,
				"version":              gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}

		updated, err := findSignUp(tx, "id = ?", signUp.ID)
		if err != nil {
			return err
		}
		result = &domain.TerminateResult{SignUp: updated, Changed: true, ReleasedCapacity: released}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reserve takes one unit from the event and, when the event has slots, from
// the best eligible slot. The event is the copy read inside tx.
func (r *SignUpRepository) reserve(ctx context.Context, tx *gorm.DB, event *domain.Event, gradeYear *int) (*uuid.UUID, error) {
	if !event.IsCapacityTracked() {
		return nil, nil
	}
	if !event.HasRemainingCapacity() {
		return nil, domain.ErrCapacityExhausted
	}

	var slot *domain.Slot
	if len(event.Slots) > 0 {
		if len(domain.EligibleSlots(event.Slots, gradeYear)) == 0 {
			return nil, domain.ErrNoEligibleSlot
		}
		slot = domain.SelectSlot(event.Slots, gradeYear)
		if slot == nil {
			return nil, errSlotsFull
		}
	}

	store := r.capacity.WithTx(tx)
	if err := store.DecrementEvent(ctx, event.ID, event.Version); err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, nil
	}

	if err := store.DecrementSlot(ctx, slot.ID, slot.Version); err != nil {
		if errors.Is(err, domain.ErrCapacityExhausted) {
			// Our read of the slot is stale; the caller rereads.
			return nil, domain.ErrVersionConflict
		}
		return nil, err
	}
	id := slot.ID
	return &id, nil
}

func (r *SignUpRepository) release(ctx context.Context, tx *gorm.DB, signUp *domain.SignUp) (bool, error) {
	var event domain.Event
	if err := tx.Select("id", "capacity").First(&event, "id = ?", signUp.EventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if !event.IsCapacityTracked() {
		return false, nil
	}

	store := r.capacity.WithTx(tx)
	released, err := store.IncrementEvent(ctx, signUp.EventID)
	if err != nil {
		return false, err
	}
	if signUp.SlotID != nil {
		slotReleased, err := store.IncrementSlot(ctx, *signUp.SlotID)
		if err != nil {
			return false, err
		}
		if released && !slotReleased {
			metrics.SlotReleaseSkipped.Inc()
			logger.WithFields(map[string]interface{}{
				"sign_up_id": signUp.ID,
				"event_id":   signUp.EventID,
				"slot_id":    *signUp.SlotID,
			}).Warn("Slot already at full capacity while releasing sign-up")
		}
	}
	return released, nil
}

func placeOrder(ctx context.Context, tx *gorm.DB, event *domain.Event, place domain.PlaceOrderFunc) error {
	if !event.IsTicketed() {
		return nil
	}
	if place == nil {
		return fmt.Errorf("%w: no order collaborator configured", domain.ErrOrderFailed)
	}
	order, err := place(ctx, event)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOrderFailed, err)
	}
	if order == nil {
		return nil
	}
	if err := tx.Create(order).Error; err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return nil
}

func findSignUp(db *gorm.DB, query string, args ...interface{}) (*domain.SignUp, error) {
	var signUp domain.SignUp
	err := db.Where(query, args...).First(&signUp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &signUp, nil
}
