package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventRepository defines the interface for event data access
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	// ListPendingPromotion returns events with free capacity and at least
	// one active waitlisted sign-up.
	ListPendingPromotion(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// WaitlistCursor marks the last sign-up of a page read from the waiting list.
type WaitlistCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorAfter returns the cursor positioned just past the given sign-up.
func CursorAfter(signUp *SignUp) *WaitlistCursor {
	return &WaitlistCursor{CreatedAt: signUp.CreatedAt.UTC(), ID: signUp.ID}
}

// PlaceOrderFunc places the order a ticketed confirmation depends on. It runs
// after capacity is reserved and before the confirmation commits.
type PlaceOrderFunc func(ctx context.Context, event *Event) (*Order, error)

// ConfirmRequest describes a direct sign-up attempt.
type ConfirmRequest struct {
	UserID     uuid.UUID
	EventID    uuid.UUID
	GradeYear  *int
	PlaceOrder PlaceOrderFunc
}

// PromoteRequest describes moving a waitlisted sign-up to confirmed.
type PromoteRequest struct {
	SignUpID   uuid.UUID
	GradeYear  *int
	PlaceOrder PlaceOrderFunc
}

// TerminateResult reports what a retraction or removal did.
type TerminateResult struct {
	SignUp           *SignUp
	Changed          bool
	ReleasedCapacity bool
}

// SignUpRepository defines the transactional sign-up operations. Every
// mutation of remaining capacity happens inside these calls.
type SignUpRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*SignUp, error)
	GetActive(ctx context.Context, userID, eventID uuid.UUID) (*SignUp, error)
	GetLatest(ctx context.Context, userID, eventID uuid.UUID) (*SignUp, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, status *ParticipationStatus) ([]*SignUp, error)
	// ListWaitlisted pages the live waiting list in FIFO order, starting
	// after the cursor when one is given.
	ListWaitlisted(ctx context.Context, eventID uuid.UUID, after *WaitlistCursor, limit int) ([]*SignUp, error)
	// CountWaitlistedAhead counts live waitlisted sign-ups of the same event
	// ordered before the given one (created_at, then id).
	CountWaitlistedAhead(ctx context.Context, signUp *SignUp) (int64, error)

	// CreateConfirmed checks for an active sign-up, reserves capacity on the
	// event and the selected slot and inserts a CONFIRMED row, all in one
	// transaction. Failure modes: ErrAlreadySignedUp, ErrCapacityExhausted,
	// ErrNoEligibleSlot, ErrVersionConflict, ErrOrderFailed.
	CreateConfirmed(ctx context.Context, req ConfirmRequest) (*SignUp, error)
	// CreateWaitlisted inserts an ON_WAITLIST row without touching capacity.
	CreateWaitlisted(ctx context.Context, userID, eventID uuid.UUID) (*SignUp, error)
	// Promote confirms a waitlisted sign-up through the same capacity path.
	// Failure modes: ErrNotPromotable, ErrCapacityExhausted,
	// ErrNoEligibleSlot, ErrVersionConflict, ErrOrderFailed.
	Promote(ctx context.Context, req PromoteRequest) (*SignUp, error)
	// Terminate moves a sign-up to RETRACTED or REMOVED and releases its
	// capacity if it held any. Terminal sign-ups are returned unchanged.
	Terminate(ctx context.Context, id uuid.UUID, status ParticipationStatus) (*TerminateResult, error)
}

// StatsRepository serves the aggregate read model.
type StatsRepository interface {
	GetEventStats(ctx context.Context, eventID uuid.UUID) (*EventStats, error)
}
