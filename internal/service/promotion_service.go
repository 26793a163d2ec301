package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "signup-service/internal/domain/signup"
	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
)

const (
	promotionBatchSize = 100
	sweepBatchSize     = 500
)

var _ interfaces.PromotionHandler = (*SignUpService)(nil)

// ProcessPromotion confirms waitlisted sign-ups in FIFO order while the
// event has free capacity that one of them fits. Running it again after
// capacity is used up is a no-op, so duplicate job deliveries are harmless.
func (s *SignUpService) ProcessPromotion(ctx context.Context, eventID uuid.UUID) error {
	count := 0
	for {
		var promoted *domain.SignUp
		err := s.retryConflicts(ctx, func(ctx context.Context) error {
			var err error
			promoted, err = s.promoteNext(ctx, eventID)
			return err
		})
		if err != nil {
			metrics.Promotions.WithLabelValues(outcomeLabel(err)).Inc()
			return err
		}
		if promoted == nil {
			break
		}

		count++
		metrics.Promotions.WithLabelValues("promoted").Inc()
		logger.WithFields(map[string]interface{}{
			"sign_up_id": promoted.ID,
			"user_id":    promoted.UserID,
			"event_id":   eventID,
		}).Info("Sign-up promoted from waiting list")

		s.notifyPromoted(ctx, promoted)
	}

	if count == 0 {
		metrics.Promotions.WithLabelValues("noop").Inc()
	}
	return nil
}

// promoteNext walks the waiting list in FIFO order, one page at a time, and
// promotes the first candidate with an eligible slot. A nil sign-up means
// nobody could be promoted.
func (s *SignUpService) promoteNext(ctx context.Context, eventID uuid.UUID) (*domain.SignUp, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if event == nil || !event.IsCapacityTracked() || !event.HasRemainingCapacity() {
		return nil, nil
	}

	var cursor *domain.WaitlistCursor
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates, err := s.signUps.ListWaitlisted(ctx, eventID, cursor, promotionBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read waiting list: %w", err)
		}

		for _, candidate := range candidates {
			promoted, done, err := s.tryPromote(ctx, event, candidate)
			if err != nil || done {
				return promoted, err
			}
		}

		if len(candidates) < promotionBatchSize {
			return nil, nil
		}
		cursor = domain.CursorAfter(candidates[len(candidates)-1])
	}
}

// tryPromote attempts one candidate. done reports that the walk should stop,
// either because the candidate was promoted or the event filled up.
func (s *SignUpService) tryPromote(ctx context.Context, event *domain.Event, candidate *domain.SignUp) (*domain.SignUp, bool, error) {
	u, err := s.users.GetByID(ctx, candidate.UserID)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read user: %w", err)
	}
	var gradeYear *int
	if u != nil {
		gradeYear = u.GradeYear(s.now())
	}
	if len(event.Slots) > 0 && domain.SelectSlot(event.Slots, gradeYear) == nil {
		return nil, false, nil
	}

	orders := &orderAttempts{service: s, userID: candidate.UserID}
	promoted, err := s.signUps.Promote(ctx, domain.PromoteRequest{
		SignUpID:   candidate.ID,
		GradeYear:  gradeYear,
		PlaceOrder: orders.place,
	})
	orders.settle(ctx, err == nil)

	switch {
	case err == nil:
		return promoted, true, nil
	case errors.Is(err, domain.ErrNoEligibleSlot),
		errors.Is(err, domain.ErrNotPromotable),
		errors.Is(err, domain.ErrSignUpNotFound):
		return nil, false, nil
	case errors.Is(err, domain.ErrOrderFailed):
		logger.WithFields(map[string]interface{}{
			"sign_up_id": candidate.ID,
			"event_id":   event.ID,
		}).WithError(err).Warn("Skipping waitlisted sign-up whose order failed")
		return nil, false, nil
	case errors.Is(err, domain.ErrCapacityExhausted):
		return nil, true, nil
	default:
		return nil, true, err
	}
}

// Notification failures are logged; the promotion stays committed.
func (s *SignUpService) notifyPromoted(ctx context.Context, signUp *domain.SignUp) {
	if s.notifier == nil {
		return
	}

	notice := interfaces.PromotionNotice{
		UserID:     signUp.UserID,
		EventID:    signUp.EventID,
		SignUpID:   signUp.ID,
		PromotedAt: s.now(),
	}
	if u, err := s.users.GetByID(ctx, signUp.UserID); err == nil && u != nil {
		notice.Email = u.Email
	}
	if event, err := s.events.GetByID(ctx, signUp.EventID); err == nil && event != nil {
		notice.EventTitle = event.Title
	}

	if err := s.notifier.NotifyPromoted(ctx, notice); err != nil {
		metrics.NotificationFailures.Inc()
		logger.WithField("sign_up_id", signUp.ID).WithError(err).Warn("Failed to send promotion notice")
	}
}

// ReconcilePromotions enqueues a promotion job for every event with free
// capacity and an active waiting list. It returns how many were enqueued.
func (s *SignUpService) ReconcilePromotions(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, errors.New("no promotion queue configured")
	}

	eventIDs, err := s.events.ListPendingPromotion(ctx, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find events pending promotion: %w", err)
	}

	enqueued := 0
	for _, id := range eventIDs {
		if err := s.queue.EnqueuePromotion(ctx, id); err != nil {
			metrics.EnqueueFailures.Inc()
			logger.WithField("event_id", id).WithError(err).Error("Sweeper failed to enqueue promotion job")
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		metrics.SweeperEnqueued.Add(float64(enqueued))
		logger.Info("Sweeper enqueued %d promotion jobs", enqueued)
	}
	return enqueued, nil
}

// RunSweeper calls ReconcilePromotions every interval until ctx is done.
func (s *SignUpService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Promotion sweeper started (interval %s)", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Promotion sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.ReconcilePromotions(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Promotion sweep failed: %v", err)
			}
		}
	}
}
