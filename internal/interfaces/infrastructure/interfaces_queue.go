package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PromotionJob asks the worker to fill freed capacity on an event.
type PromotionJob struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// NewPromotionJob creates a job for the event.
func NewPromotionJob(eventID uuid.UUID) PromotionJob {
	return PromotionJob{
		ID:         uuid.New(),
		EventID:    eventID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// DeadLetter is a job that failed every allowed attempt.
type DeadLetter struct {
	Job      PromotionJob `json:"job"`
	Reason   string       `json:"reason"`
	FailedAt time.Time    `json:"failed_at"`
}

type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// PromotionHandler processes one promotion job. A non-nil error sends the
// job back for another attempt.
type PromotionHandler interface {
	ProcessPromotion(ctx context.Context, eventID uuid.UUID) error
}

// QueueService is an at-least-once promotion job channel.
type QueueService interface {
	EnqueuePromotion(ctx context.Context, eventID uuid.UUID) error
	SetPromotionHandler(handler PromotionHandler)
	StartWorkers()
	StopWorkers()
	Stats(ctx context.Context) (QueueStats, error)
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
}
