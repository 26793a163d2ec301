package service

import (
	"context"
	"time"

	domain "signup-service/internal/domain/signup"
	infrastructure "signup-service/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// CreateSlotRequest describes one slot of a new event
type CreateSlotRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Capacity   int    `json:"capacity" validate:"gte=0"`
	GradeYears []int  `json:"grade_years" validate:"omitempty,dive,gte=1,lte=10"`
}

// CreateEventRequest describes a new event. A nil Capacity creates an event
// whose sign-ups are not capacity-tracked.
type CreateEventRequest struct {
	OrganizationID uuid.UUID           `json:"organization_id" validate:"required"`
	Title          string              `json:"title" validate:"required,min=1,max=200"`
	Capacity       *int                `json:"capacity" validate:"omitempty,gte=0"`
	SignUpsEnabled bool                `json:"sign_ups_enabled"`
	SignUpsStartAt *time.Time          `json:"sign_ups_start_at"`
	SignUpsEndAt   *time.Time          `json:"sign_ups_end_at"`
	ProductRef     *string             `json:"product_ref" validate:"omitempty,min=1,max=100"`
	Slots          []CreateSlotRequest `json:"slots" validate:"omitempty,dive"`
}

// SignUpService is the public sign-up API. actorID is the authenticated
// caller; userID is who the call is for. Only super users may act for
// someone else.
type SignUpService interface {
	SignUp(ctx context.Context, actorID, userID, eventID uuid.UUID) (*domain.SignUp, error)
	RetractSignUp(ctx context.Context, actorID, userID, eventID uuid.UUID) (*domain.SignUp, error)
	RemoveSignUp(ctx context.Context, actorID, signUpID uuid.UUID) (*domain.SignUp, error)
	GetSignUpAvailability(ctx context.Context, userID *uuid.UUID, eventID uuid.UUID) (domain.Availability, error)
	GetApproximatePositionOnWaitingList(ctx context.Context, userID, eventID uuid.UUID) (int, error)

	// Organizer operations
	ListSignUps(ctx context.Context, actorID, eventID uuid.UUID, status *domain.ParticipationStatus) ([]*domain.SignUp, error)
	GetSignUpStats(ctx context.Context, actorID, eventID uuid.UUID) (*domain.EventStats, error)
	CreateEvent(ctx context.Context, actorID uuid.UUID, req *CreateEventRequest) (*domain.Event, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error)

	// Internal processing (called by queue workers and the sweeper)
	ProcessPromotion(ctx context.Context, eventID uuid.UUID) error
	ReconcilePromotions(ctx context.Context) (int, error)
}

var _ infrastructure.PromotionHandler = (SignUpService)(nil)
