package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PromotionNotice tells a user they moved off the waiting list.
type PromotionNotice struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	EventID    uuid.UUID `json:"event_id"`
	EventTitle string    `json:"event_title"`
	SignUpID   uuid.UUID `json:"sign_up_id"`
	PromotedAt time.Time `json:"promoted_at"`
}

// Notifier delivers promotion notices. Delivery is fire-and-forget from the
// caller's point of view.
type Notifier interface {
	NotifyPromoted(ctx context.Context, notice PromotionNotice) error
}

// PlacedOrder is an order accepted by the payment provider.
type PlacedOrder struct {
	ID         uuid.UUID
	Reference  string
	ProductRef string
	PlacedAt   time.Time
}

// OrderService is the payment provider an event's ticket is bought from.
type OrderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, productRef string) (*PlacedOrder, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) error
}
