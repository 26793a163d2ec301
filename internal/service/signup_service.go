package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/domain/user"
	interfaces "signup-service/internal/interfaces/infrastructure"
	serviceInterfaces "signup-service/internal/interfaces/service"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries  = 20
	DefaultBackoffBase = 2 * time.Millisecond
	DefaultBackoffMax  = 50 * time.Millisecond
)

var _ serviceInterfaces.SignUpService = (*SignUpService)(nil)

// Options tunes the optimistic retry loop.
type Options struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	return o
}

// Dependencies groups the collaborators of SignUpService. Notifier and
// Orders may be nil: promotions are then not announced and ticketed events
// cannot be confirmed.
type Dependencies struct {
	Events      domain.EventRepository
	SignUps     domain.SignUpRepository
	Stats       domain.StatsRepository
	Users       user.UserRepository
	Memberships user.MembershipRepository
	Queue       interfaces.QueueService
	Notifier    interfaces.Notifier
	Orders      interfaces.OrderService
}

type SignUpService struct {
	events      domain.EventRepository
	signUps     domain.SignUpRepository
	stats       domain.StatsRepository
	users       user.UserRepository
	memberships user.MembershipRepository
	queue       interfaces.QueueService
	notifier    interfaces.Notifier
	orders      interfaces.OrderService

	opts Options
	now  func() time.Time
}

func NewSignUpService(deps Dependencies, opts Options) *SignUpService {
	return &SignUpService{
		events:      deps.Events,
		signUps:     deps.SignUps,
		stats:       deps.Stats,
		users:       deps.Users,
		memberships: deps.Memberships,
		queue:       deps.Queue,
		notifier:    deps.Notifier,
		orders:      deps.Orders,
		opts:        opts.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type CreateEventRequest = serviceInterfaces.CreateEventRequest
type CreateSlotRequest = serviceInterfaces.CreateSlotRequest

// SignUp registers userID for eventID. The user is confirmed when capacity
// is left, waitlisted otherwise. A user who already holds an active sign-up
// gets it back unchanged.
func (s *SignUpService) SignUp(ctx context.Context, actorID, userID, eventID uuid.UUID) (*domain.SignUp, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	u, err := s.actingFor(ctx, actorID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(event); err != nil {
		return nil, err
	}

	existing, err := s.signUps.GetActive(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active sign-up: %w", err)
	}
	if existing != nil {
		metrics.SignUps.WithLabelValues("existing").Inc()
		return existing, nil
	}

	gradeYear := u.GradeYear(s.now())
	if event.IsCapacityTracked() && len(event.Slots) > 0 && len(domain.EligibleSlots(event.Slots, gradeYear)) == 0 {
		metrics.SignUps.WithLabelValues("ineligible").Inc()
		return nil, domain.ErrNoEligibleSlot
	}

	orders := &orderAttempts{service: s, userID: userID}
	var signUp *domain.SignUp
	err = s.retryConflicts(ctx, func(ctx context.Context) error {
		var err error
		signUp, err = s.signUps.CreateConfirmed(ctx, domain.ConfirmRequest{
			UserID:     userID,
			EventID:    eventID,
			GradeYear:  gradeYear,
			PlaceOrder: orders.place,
		})
		return err
	})

	fields := map[string]interface{}{"user_id": userID, "event_id": eventID}
	switch {
	case err == nil:
		orders.settle(ctx, true)
		metrics.SignUps.WithLabelValues("confirmed").Inc()
		logger.WithFields(fields).Info("Sign-up confirmed")
		return signUp, nil

	case errors.Is(err, domain.ErrCapacityExhausted):
		orders.settle(ctx, false)
		signUp, err = s.signUps.CreateWaitlisted(ctx, userID, eventID)
		if errors.Is(err, domain.ErrAlreadySignedUp) {
			return s.existingSignUp(ctx, userID, eventID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to add sign-up to waiting list: %w", err)
		}
		metrics.SignUps.WithLabelValues("waitlisted").Inc()
		logger.WithFields(fields).Info("Sign-up placed on waiting list")
		return signUp, nil

	case errors.Is(err, domain.ErrAlreadySignedUp):
		// A concurrent request of the same user won the insert.
		orders.settle(ctx, false)
		return s.existingSignUp(ctx, userID, eventID)

	default:
		orders.settle(ctx, false)
		metrics.SignUps.WithLabelValues(outcomeLabel(err)).Inc()
		logger.WithFields(fields).WithError(err).Warn("Sign-up failed")
		return nil, err
	}
}

func (s *SignUpService) existingSignUp(ctx context.Context, userID, eventID uuid.UUID) (*domain.SignUp, error) {
	existing, err := s.signUps.GetActive(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active sign-up: %w", err)
	}
	if existing == nil {
		// The competing sign-up was retracted in between.
		return nil, fmt.Errorf("%w: sign-up changed concurrently", domain.ErrRetriesExhausted)
	}
	metrics.SignUps.WithLabelValues("existing").Inc()
	return existing, nil
}

// RetractSignUp withdraws the user's live sign-up. Retracting twice returns
// the already retracted sign-up.
func (s *SignUpService) RetractSignUp(ctx context.Context, actorID, userID, eventID uuid.UUID) (*domain.SignUp, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	if _, err := s.actingFor(ctx, actorID, userID); err != nil {
		return nil, err
	}

	active, err := s.signUps.GetActive(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active sign-up: %w", err)
	}
	if active == nil {
		latest, err := s.signUps.GetLatest(ctx, userID, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to read sign-up: %w", err)
		}
		if latest == nil {
			return nil, domain.ErrSignUpNotFound
		}
		return latest, nil
	}

	return s.terminate(ctx, active.ID, domain.StatusRetracted)
}

// RemoveSignUp lets an organizer of the event's organization take a sign-up
// off the event.
func (s *SignUpService) RemoveSignUp(ctx context.Context, actorID, signUpID uuid.UUID) (*domain.SignUp, error) {
	signUp, err := s.signUps.GetByID(ctx, signUpID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sign-up: %w", err)
	}
	if signUp == nil {
		return nil, domain.ErrSignUpNotFound
	}

	event, err := s.getEvent(ctx, signUp.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, actorID, event.OrganizationID, user.RoleAdmin); err != nil {
		return nil, err
	}

	return s.terminate(ctx, signUp.ID, domain.StatusRemoved)
}

func (s *SignUpService) terminate(ctx context.Context, signUpID uuid.UUID, status domain.ParticipationStatus) (*domain.SignUp, error) {
	var result *domain.TerminateResult
	err := s.retryConflicts(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.signUps.Terminate(ctx, signUpID, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		return result.SignUp, nil
	}

	metrics.Terminations.WithLabelValues(string(status), fmt.Sprint(result.ReleasedCapacity)).Inc()
	logger.WithFields(map[string]interface{}{
		"sign_up_id": result.SignUp.ID,
		"user_id":    result.SignUp.UserID,
		"event_id":   result.SignUp.EventID,
		"status":     status,
		"released":   result.ReleasedCapacity,
	}).Info("Sign-up terminated")

	if result.ReleasedCapacity {
		s.enqueuePromotion(ctx, result.SignUp.EventID)
	}
	return result.SignUp, nil
}

// enqueuePromotion never fails the caller; the sweeper picks up events a
// lost job left behind.
func (s *SignUpService) enqueuePromotion(ctx context.Context, eventID uuid.UUID) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueuePromotion(context.WithoutCancel(ctx), eventID); err != nil {
		metrics.EnqueueFailures.Inc()
		logger.WithField("event_id", eventID).WithError(err).Error("Failed to enqueue promotion job")
	}
}

// GetSignUpAvailability reports what signing up would do right now. userID
// is nil for anonymous callers.
func (s *SignUpService) GetSignUpAvailability(ctx context.Context, userID *uuid.UUID, eventID uuid.UUID) (domain.Availability, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return "", err
	}

	switch err := s.checkWindow(event); {
	case errors.Is(err, domain.ErrSignUpsDisabled):
		return domain.AvailabilityDisabled, nil
	case errors.Is(err, domain.ErrSignUpsNotOpen):
		return domain.AvailabilityNotOpen, nil
	case errors.Is(err, domain.ErrSignUpsClosed):
		return domain.AvailabilityClosed, nil
	}

	var gradeYear *int
	if userID != nil {
		active, err := s.signUps.GetActive(ctx, *userID, eventID)
		if err != nil {
			return "", fmt.Errorf("failed to read active sign-up: %w", err)
		}
		if active != nil {
			switch active.ParticipationStatus {
			case domain.StatusConfirmed:
				return domain.AvailabilityConfirmed, nil
			case domain.StatusOnWaitlist:
				return domain.AvailabilityOnWaitlist, nil
			}
		}

		u, err := s.users.GetByID(ctx, *userID)
		if err != nil {
			return "", fmt.Errorf("failed to read user: %w", err)
		}
		if u == nil {
			return "", domain.ErrUserNotFound
		}
		gradeYear = u.GradeYear(s.now())
	}

	if !event.IsCapacityTracked() {
		return domain.AvailabilityAvailable, nil
	}
	if len(event.Slots) > 0 {
		if len(domain.EligibleSlots(event.Slots, gradeYear)) == 0 {
			return domain.AvailabilityUnavailable, nil
		}
		if event.HasRemainingCapacity() && domain.SelectSlot(event.Slots, gradeYear) != nil {
			return domain.AvailabilityAvailable, nil
		}
		return domain.AvailabilityWaitlistAvailable, nil
	}
	if event.HasRemainingCapacity() {
		return domain.AvailabilityAvailable, nil
	}
	return domain.AvailabilityWaitlistAvailable, nil
}

// GetApproximatePositionOnWaitingList returns the 1-based FIFO position of
// the user's waitlisted sign-up, ignoring slot eligibility.
func (s *SignUpService) GetApproximatePositionOnWaitingList(ctx context.Context, userID, eventID uuid.UUID) (int, error) {
	active, err := s.signUps.GetActive(ctx, userID, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to read active sign-up: %w", err)
	}
	if active == nil || active.ParticipationStatus != domain.StatusOnWaitlist {
		return 0, domain.ErrNotOnWaitlist
	}

	ahead, err := s.signUps.CountWaitlistedAhead(ctx, active)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting list: %w", err)
	}
	return int(ahead) + 1, nil
}

func (s *SignUpService) ListSignUps(ctx context.Context, actorID, eventID uuid.UUID, status *domain.ParticipationStatus) ([]*domain.SignUp, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, actorID, event.OrganizationID, user.RoleMember); err != nil {
		return nil, err
	}

	signUps, err := s.signUps.ListByEvent(ctx, eventID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list sign-ups: %w", err)
	}
	return signUps, nil
}

func (s *SignUpService) GetSignUpStats(ctx context.Context, actorID, eventID uuid.UUID) (*domain.EventStats, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, actorID, event.OrganizationID, user.RoleMember); err != nil {
		return nil, err
	}

	stats, err := s.stats.GetEventStats(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sign-up stats: %w", err)
	}
	if stats == nil {
		return nil, domain.ErrEventNotFound
	}
	return stats, nil
}

func (s *SignUpService) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	return s.getEvent(ctx, eventID)
}

// CreateEvent stores a new event with its slots at full remaining capacity.
func (s *SignUpService) CreateEvent(ctx context.Context, actorID uuid.UUID, req *CreateEventRequest) (*domain.Event, error) {
	if err := s.requireRole(ctx, actorID, req.OrganizationID, user.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateEvent(req); err != nil {
		return nil, err
	}

	event := &domain.Event{
		ID:             uuid.New(),
		OrganizationID: req.OrganizationID,
		Title:          req.Title,
		Version:        1,
		SignUpsEnabled: req.SignUpsEnabled,
		SignUpsStartAt: utc(req.SignUpsStartAt),
		SignUpsEndAt:   utc(req.SignUpsEndAt),
		ProductRef:     req.ProductRef,
	}
	if req.Capacity != nil {
		capacity := *req.Capacity
		remaining := capacity
		event.Capacity = &capacity
		event.RemainingCapacity = &remaining
	}
	for _, sr := range req.Slots {
		event.Slots = append(event.Slots, domain.Slot{
			ID:                uuid.New(),
			EventID:           event.ID,
			Name:              sr.Name,
			Capacity:          sr.Capacity,
			RemainingCapacity: sr.Capacity,
			Version:           1,
			GradeYears:        sr.GradeYears,
		})
	}

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"event_id":        event.ID,
		"organization_id": event.OrganizationID,
		"slots":           len(event.Slots),
	}).Info("Event created")
	return event, nil
}

func validateEvent(req *CreateEventRequest) error {
	if req.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidEvent)
	}
	if req.Capacity != nil && *req.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", domain.ErrInvalidEvent)
	}
	if req.Capacity == nil && len(req.Slots) > 0 {
		return fmt.Errorf("%w: slots require a capacity-tracked event", domain.ErrInvalidEvent)
	}
	for _, sr := range req.Slots {
		if sr.Capacity < 0 {
			return fmt.Errorf("%w: slot %q capacity must not be negative", domain.ErrInvalidEvent, sr.Name)
		}
	}
	if req.SignUpsStartAt != nil && req.SignUpsEndAt != nil && !req.SignUpsEndAt.After(*req.SignUpsStartAt) {
		return fmt.Errorf("%w: sign-up window ends before it starts", domain.ErrInvalidEvent)
	}
	return nil
}

func (s *SignUpService) getEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if event == nil {
		return nil, domain.ErrEventNotFound
	}
	return event, nil
}

func (s *SignUpService) checkWindow(event *domain.Event) error {
	if !event.SignUpsEnabled {
		return domain.ErrSignUpsDisabled
	}
	now := s.now()
	if event.SignUpsStartAt != nil && now.Before(*event.SignUpsStartAt) {
		return domain.ErrSignUpsNotOpen
	}
	if event.SignUpsEndAt != nil && now.After(*event.SignUpsEndAt) {
		return domain.ErrSignUpsClosed
	}
	return nil
}

// actingFor loads the target user after checking that actorID may act for
// them.
func (s *SignUpService) actingFor(ctx context.Context, actorID, userID uuid.UUID) (*user.User, error) {
	if actorID != userID {
		actor, err := s.users.GetByID(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("failed to read actor: %w", err)
		}
		if actor == nil || !actor.IsSuperUser {
			return nil, domain.ErrPermissionDenied
		}
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *SignUpService) requireRole(ctx context.Context, actorID, organizationID uuid.UUID, role user.Role) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to read actor: %w", err)
	}
	if actor == nil {
		return domain.ErrPermissionDenied
	}
	if actor.IsSuperUser {
		return nil
	}

	ok, err := s.memberships.HasRole(ctx, actorID, organizationID, role)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return domain.ErrPermissionDenied
	}
	return nil
}

// retryConflicts runs fn until it returns something other than
// ErrVersionConflict or the retry budget runs out.
func (s *SignUpService) retryConflicts(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := newConflictBackoff(s.opts)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.SignUpConflicts.Inc()
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, err)
	}
	return err
}

// newConflictBackoff yields MaxRetries-1 waits drawn uniformly from
// [0, min(max, base*2^n)).
func newConflictBackoff(opts Options) retry.Backoff {
	b := retry.NewExponential(opts.BackoffBase)
	b = retry.WithCappedDuration(opts.BackoffMax, b)
	b = withFullJitter(b)
	return retry.WithMaxRetries(uint64(opts.MaxRetries-1), b)
}

func withFullJitter(next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop || d <= 0 {
			return d, stop
		}
		return rand.N(d), false
	})
}

// orderAttempts tracks orders placed across retries of one confirmation so
// the ones whose transaction rolled back can be cancelled.
type orderAttempts struct {
	service *SignUpService
	userID  uuid.UUID
	placed  []uuid.UUID
}

func (o *orderAttempts) place(ctx context.Context, event *domain.Event) (*domain.Order, error) {
	if o.service.orders == nil {
		return nil, errors.New("no payment provider configured")
	}
	placed, err := o.service.orders.CreateOrder(ctx, o.userID, *event.ProductRef)
	if err != nil {
		return nil, err
	}
	o.placed = append(o.placed, placed.ID)
	return &domain.Order{
		ID:         placed.ID,
		UserID:     o.userID,
		EventID:    event.ID,
		ProductRef: placed.ProductRef,
		Status:     "PLACED",
	}, nil
}

// settle cancels every order that did not end up attached to a committed
// confirmation. When committed is true the last order is kept.
func (o *orderAttempts) settle(ctx context.Context, committed bool) {
	stale := o.placed
	if committed && len(stale) > 0 {
		stale = stale[:len(stale)-1]
	}
	for _, id := range stale {
		if err := o.service.orders.CancelOrder(context.WithoutCancel(ctx), id); err != nil {
			logger.WithField("order_id", id).WithError(err).Warn("Failed to cancel orphaned order")
		}
	}
	o.placed = nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, domain.ErrNoEligibleSlot):
		return "ineligible"
	case errors.Is(err, domain.ErrOrderFailed):
		return "order_failed"
	default:
		return "error"
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
