package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/domain/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSignUp_RetractPromotesWaitlistedUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	event := h.addEvent(t, intPtr(1), CreateSlotRequest{Name: "all", Capacity: 1})
	a := h.addUser(t, "alice", graduationFor(3))
	b := h.addUser(t, "bob", graduationFor(3))

	first := h.signUp(t, a, event.ID)
	assert.Equal(t, domain.StatusConfirmed, first.ParticipationStatus)
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)

	second := h.signUp(t, b, event.ID)
	assert.Equal(t, domain.StatusOnWaitlist, second.ParticipationStatus)
	assert.Nil(t, second.SlotID)

	retracted, err := h.svc.RetractSignUp(ctx, a.ID, a.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetracted, retracted.ParticipationStatus)
	assert.Equal(t, []uuid.UUID{event.ID}, h.queue.enqueued())
	assert.Equal(t, 1, *h.event(t, event.ID).RemainingCapacity)

	require.NoError(t, h.svc.ProcessPromotion(ctx, event.ID))

	promoted, err := h.signUps.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, promoted.ParticipationStatus)
	require.NotNil(t, promoted.SlotID)
	assert.Equal(t, event.Slots[0].ID, *promoted.SlotID)
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)

	availability, err := h.svc.GetSignUpAvailability(ctx, &a.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityWaitlistAvailable, availability)

	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, b.ID, h.notifier.notices[0].UserID)
	assert.Equal(t, b.Email, h.notifier.notices[0].Email)
	assert.Equal(t, "Spring trip", h.notifier.notices[0].EventTitle)

	// A redelivered job finds no capacity and changes nothing.
	require.NoError(t, h.svc.ProcessPromotion(ctx, event.ID))
	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)
}

func TestSignUp_ZeroCapacityAlwaysWaitlists(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(0))

	for i := 0; i < 3; i++ {
		su := h.signUp(t, h.addUser(t, "user", nil), event.ID)
		assert.Equal(t, domain.StatusOnWaitlist, su.ParticipationStatus)
	}
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)
}

func TestSignUp_UntrackedEventConfirmsEveryone(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, nil)

	for i := 0; i < 3; i++ {
		su := h.signUp(t, h.addUser(t, "user", nil), event.ID)
		assert.Equal(t, domain.StatusConfirmed, su.ParticipationStatus)
	}

	u := h.addUser(t, "late", nil)
	h.signUp(t, u, event.ID)
	_, err := h.svc.RetractSignUp(context.Background(), u.ID, u.ID, event.ID)
	require.NoError(t, err)
	assert.Empty(t, h.queue.enqueued())
}

func TestSignUp_GradeYearEligibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	event := h.addEvent(t, intPtr(10), CreateSlotRequest{Name: "juniors", Capacity: 0, GradeYears: []int{1, 2}})
	firstYear := h.addUser(t, "first", graduationFor(1))
	fourthYear := h.addUser(t, "fourth", graduationFor(4))
	unknown := h.addUser(t, "unknown", nil)

	availability, err := h.svc.GetSignUpAvailability(ctx, &firstYear.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityWaitlistAvailable, availability)

	availability, err = h.svc.GetSignUpAvailability(ctx, &fourthYear.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityUnavailable, availability)

	availability, err = h.svc.GetSignUpAvailability(ctx, &unknown.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityUnavailable, availability)

	su := h.signUp(t, firstYear, event.ID)
	assert.Equal(t, domain.StatusOnWaitlist, su.ParticipationStatus)

	_, err = h.svc.SignUp(ctx, fourthYear.ID, fourthYear.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrNoEligibleSlot)
	assert.Equal(t, 10, *h.event(t, event.ID).RemainingCapacity)
}

func TestSignUp_SlotSelectionBalances(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(4),
		CreateSlotRequest{Name: "morning", Capacity: 2},
		CreateSlotRequest{Name: "evening", Capacity: 2},
	)

	counts := map[uuid.UUID]int{}
	for i := 0; i < 4; i++ {
		su := h.signUp(t, h.addUser(t, "user", nil), event.ID)
		require.NotNil(t, su.SlotID)
		counts[*su.SlotID]++
	}
	assert.Equal(t, 2, counts[event.Slots[0].ID])
	assert.Equal(t, 2, counts[event.Slots[1].ID])
}

func TestSignUp_WindowAndAvailabilityPrecedence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.addUser(t, "user", nil)

	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name         string
		req          CreateEventRequest
		wantErr      error
		availability domain.Availability
	}{
		{
			name:         "disabled",
			req:          CreateEventRequest{Capacity: intPtr(5)},
			wantErr:      domain.ErrSignUpsDisabled,
			availability: domain.AvailabilityDisabled,
		},
		{
			name:         "not open",
			req:          CreateEventRequest{Capacity: intPtr(5), SignUpsEnabled: true, SignUpsStartAt: &future},
			wantErr:      domain.ErrSignUpsNotOpen,
			availability: domain.AvailabilityNotOpen,
		},
		{
			name:         "closed",
			req:          CreateEventRequest{Capacity: intPtr(5), SignUpsEnabled: true, SignUpsEndAt: &past},
			wantErr:      domain.ErrSignUpsClosed,
			availability: domain.AvailabilityClosed,
		},
		{
			name:         "open",
			req:          CreateEventRequest{Capacity: intPtr(5), SignUpsEnabled: true, SignUpsStartAt: &past, SignUpsEndAt: &future},
			availability: domain.AvailabilityAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.OrganizationID = h.org
			req.Title = tt.name
			event, err := h.svc.CreateEvent(ctx, h.admin.ID, &req)
			require.NoError(t, err)

			availability, err := h.svc.GetSignUpAvailability(ctx, &u.ID, event.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.availability, availability)

			anonymous, err := h.svc.GetSignUpAvailability(ctx, nil, event.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.availability, anonymous)

			_, err = h.svc.SignUp(ctx, u.ID, u.ID, event.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			availability, err = h.svc.GetSignUpAvailability(ctx, &u.ID, event.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.AvailabilityConfirmed, availability)
		})
	}

	_, err := h.svc.GetSignUpAvailability(ctx, nil, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	_, err = h.svc.SignUp(ctx, u.ID, u.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestSignUp_ExistingSignUpIsReturned(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(1))
	u := h.addUser(t, "user", nil)

	first := h.signUp(t, u, event.ID)
	again := h.signUp(t, u, event.ID)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Version, again.Version)
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)
}

func TestSignUp_ActorRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(5))
	u := h.addUser(t, "user", nil)
	other := h.addUser(t, "other", nil)
	root := h.addSuperUser(t)

	_, err := h.svc.SignUp(ctx, other.ID, u.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	su, err := h.svc.SignUp(ctx, root.ID, u.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, su.UserID)

	_, err = h.svc.RetractSignUp(ctx, other.ID, u.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = h.svc.SignUp(ctx, root.ID, uuid.New(), event.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSignUp_MissingEventReportedBeforeMissingUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ghost := uuid.New()

	_, err := h.svc.SignUp(ctx, ghost, ghost, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = h.svc.RetractSignUp(ctx, ghost, ghost, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	event := h.addEvent(t, intPtr(1))
	_, err = h.svc.SignUp(ctx, ghost, ghost, event.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestRetractSignUp_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(2))
	u := h.addUser(t, "user", nil)

	_, err := h.svc.RetractSignUp(ctx, u.ID, u.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrSignUpNotFound)

	h.signUp(t, u, event.ID)
	first, err := h.svc.RetractSignUp(ctx, u.ID, u.ID, event.ID)
	require.NoError(t, err)
	second, err := h.svc.RetractSignUp(ctx, u.ID, u.ID, event.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, domain.StatusRetracted, second.ParticipationStatus)
	assert.Equal(t, 2, *h.event(t, event.ID).RemainingCapacity)
	assert.Len(t, h.queue.enqueued(), 1)

	// Signing up again creates a fresh sign-up next to the history row.
	again := h.signUp(t, u, event.ID)
	assert.NotEqual(t, first.ID, again.ID)
	assert.Equal(t, domain.StatusConfirmed, again.ParticipationStatus)
}

func TestRetractSignUp_WaitlistedReleasesNothing(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(0))
	u := h.addUser(t, "user", nil)
	h.signUp(t, u, event.ID)

	su, err := h.svc.RetractSignUp(context.Background(), u.ID, u.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetracted, su.ParticipationStatus)
	assert.Empty(t, h.queue.enqueued())
}

func TestRetractSignUp_EnqueueFailureIsSwept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(1))
	a := h.addUser(t, "a", nil)
	b := h.addUser(t, "b", nil)
	h.signUp(t, a, event.ID)
	h.signUp(t, b, event.ID)

	h.queue.failing = true
	_, err := h.svc.RetractSignUp(ctx, a.ID, a.ID, event.ID)
	require.NoError(t, err)
	assert.Empty(t, h.queue.enqueued())

	h.queue.failing = false
	n, err := h.svc.ReconcilePromotions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{event.ID}, h.queue.enqueued())
}

func TestRemoveSignUp_RequiresOrganizer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(1))
	u := h.addUser(t, "user", nil)
	member := h.addUser(t, "member", nil)
	require.NoError(t, h.members.AddMember(ctx, &user.OrganizationMember{OrganizationID: h.org, UserID: member.ID, Role: user.RoleMember}))

	su := h.signUp(t, u, event.ID)

	_, err := h.svc.RemoveSignUp(ctx, member.ID, su.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = h.svc.RemoveSignUp(ctx, u.ID, su.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	removed, err := h.svc.RemoveSignUp(ctx, h.admin.ID, su.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRemoved, removed.ParticipationStatus)
	assert.False(t, removed.Active)
	assert.Equal(t, 1, *h.event(t, event.ID).RemainingCapacity)

	_, err = h.svc.RemoveSignUp(ctx, h.admin.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSignUpNotFound)

	// Members may look but not touch.
	list, err := h.svc.ListSignUps(ctx, member.ID, event.ID, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	status := domain.StatusConfirmed
	list, err = h.svc.ListSignUps(ctx, member.ID, event.ID, &status)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.svc.ListSignUps(ctx, u.ID, event.ID, nil)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestWaitingListPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(1))

	confirmed := h.addUser(t, "confirmed", nil)
	h.signUp(t, confirmed, event.ID)

	var waiting []*user.User
	for i := 0; i < 3; i++ {
		u := h.addUser(t, "waiting", nil)
		h.signUp(t, u, event.ID)
		waiting = append(waiting, u)
	}

	for i, u := range waiting {
		pos, err := h.svc.GetApproximatePositionOnWaitingList(ctx, u.ID, event.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}

	_, err := h.svc.GetApproximatePositionOnWaitingList(ctx, confirmed.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrNotOnWaitlist)

	_, err = h.svc.RetractSignUp(ctx, waiting[0].ID, waiting[0].ID, event.ID)
	require.NoError(t, err)
	pos, err := h.svc.GetApproximatePositionOnWaitingList(ctx, waiting[2].ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestProcessPromotion_SkipsIneligibleHead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(2),
		CreateSlotRequest{Name: "seniors", Capacity: 1, GradeYears: []int{5}},
		CreateSlotRequest{Name: "sophomores", Capacity: 1, GradeYears: []int{2}},
	)

	senior := h.addUser(t, "senior", graduationFor(5))
	sophomore := h.addUser(t, "sophomore", graduationFor(2))
	waitingSophomore := h.addUser(t, "waiting-sophomore", graduationFor(2))
	waitingSenior := h.addUser(t, "waiting-senior", graduationFor(5))

	h.signUp(t, senior, event.ID)
	h.signUp(t, sophomore, event.ID)
	head := h.signUp(t, waitingSophomore, event.ID)
	tail := h.signUp(t, waitingSenior, event.ID)
	require.Equal(t, domain.StatusOnWaitlist, head.ParticipationStatus)
	require.Equal(t, domain.StatusOnWaitlist, tail.ParticipationStatus)

	_, err := h.svc.RetractSignUp(ctx, senior.ID, senior.ID, event.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.ProcessPromotion(ctx, event.ID))

	headNow, err := h.signUps.GetByID(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnWaitlist, headNow.ParticipationStatus)

	tailNow, err := h.signUps.GetByID(ctx, tail.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, tailNow.ParticipationStatus)
	assert.Equal(t, event.Slots[0].ID, *tailNow.SlotID)
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)
}

func TestProcessPromotion_ReachesPastFirstPage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(2),
		CreateSlotRequest{Name: "seniors", Capacity: 1, GradeYears: []int{5}},
		CreateSlotRequest{Name: "freshmen", Capacity: 1, GradeYears: []int{1}},
	)

	senior := h.addUser(t, "senior", graduationFor(5))
	h.signUp(t, senior, event.ID)
	h.signUp(t, h.addUser(t, "freshman", graduationFor(1)), event.ID)

	// A full page of freshmen who cannot take the senior slot.
	for i := 0; i < promotionBatchSize; i++ {
		su := h.signUp(t, h.addUser(t, "waiting-freshman", graduationFor(1)), event.ID)
		require.Equal(t, domain.StatusOnWaitlist, su.ParticipationStatus)
	}
	waitingSenior := h.signUp(t, h.addUser(t, "waiting-senior", graduationFor(5)), event.ID)
	require.Equal(t, domain.StatusOnWaitlist, waitingSenior.ParticipationStatus)

	_, err := h.svc.RetractSignUp(ctx, senior.ID, senior.ID, event.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.ProcessPromotion(ctx, event.ID))

	promoted, err := h.signUps.GetByID(ctx, waitingSenior.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, promoted.ParticipationStatus)
	require.NotNil(t, promoted.SlotID)
	assert.Equal(t, event.Slots[0].ID, *promoted.SlotID)
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)

	status := domain.StatusOnWaitlist
	waiting, err := h.signUps.ListByEvent(ctx, event.ID, &status)
	require.NoError(t, err)
	assert.Len(t, waiting, promotionBatchSize)
}

func TestProcessPromotion_NoEligibleCandidateIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(2),
		CreateSlotRequest{Name: "seniors", Capacity: 1, GradeYears: []int{5}},
		CreateSlotRequest{Name: "sophomores", Capacity: 1, GradeYears: []int{2}},
	)

	senior := h.addUser(t, "senior", graduationFor(5))
	h.signUp(t, senior, event.ID)
	h.signUp(t, h.addUser(t, "sophomore", graduationFor(2)), event.ID)
	waiting := h.signUp(t, h.addUser(t, "waiting", graduationFor(2)), event.ID)

	_, err := h.svc.RetractSignUp(ctx, senior.ID, senior.ID, event.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.ProcessPromotion(ctx, event.ID))

	still, err := h.signUps.GetByID(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnWaitlist, still.ParticipationStatus)
	assert.Equal(t, 1, *h.event(t, event.ID).RemainingCapacity)
	assert.Zero(t, h.notifier.count())
}

func TestProcessPromotion_NotificationFailureKeepsPromotion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.notifier.err = errors.New("smtp down")

	event := h.addEvent(t, intPtr(1))
	a := h.addUser(t, "a", nil)
	h.signUp(t, a, event.ID)
	waiting := h.signUp(t, h.addUser(t, "b", nil), event.ID)

	_, err := h.svc.RetractSignUp(ctx, a.ID, a.ID, event.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.ProcessPromotion(ctx, event.ID))

	promoted, err := h.signUps.GetByID(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, promoted.ParticipationStatus)
	assert.Equal(t, 1, h.notifier.count())
}

func TestProcessPromotion_MissingEventIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.svc.ProcessPromotion(context.Background(), uuid.New()))
}

func TestSignUp_TicketedEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	product := "ticket-spring"
	event, err := h.svc.CreateEvent(ctx, h.admin.ID, &CreateEventRequest{
		OrganizationID: h.org,
		Title:          "Gala",
		Capacity:       intPtr(2),
		SignUpsEnabled: true,
		ProductRef:     &product,
	})
	require.NoError(t, err)

	su := h.signUp(t, h.addUser(t, "payer", nil), event.ID)
	assert.Equal(t, domain.StatusConfirmed, su.ParticipationStatus)
	assert.Equal(t, 1, h.orders.Count())

	var orders int64
	require.NoError(t, h.db.Model(&domain.Order{}).Where("event_id = ?", event.ID).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)

	h.orders.Reject(product)
	declined := h.addUser(t, "declined", nil)
	_, err = h.svc.SignUp(ctx, declined.ID, declined.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrOrderFailed)
	assert.Equal(t, 1, *h.event(t, event.ID).RemainingCapacity)

	active, err := h.signUps.GetActive(ctx, declined.ID, event.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

type conflictingSignUps struct {
	domain.SignUpRepository
	calls atomic.Int64
}

func (c *conflictingSignUps) CreateConfirmed(ctx context.Context, req domain.ConfirmRequest) (*domain.SignUp, error) {
	c.calls.Add(1)
	return nil, domain.ErrVersionConflict
}

func TestSignUp_RetriesAreBounded(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(5))
	u := h.addUser(t, "user", nil)

	repo := &conflictingSignUps{SignUpRepository: h.signUps}
	svc := h.build(repo)

	_, err := svc.SignUp(context.Background(), u.ID, u.ID, event.ID)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, int64(DefaultMaxRetries), repo.calls.Load())

	active, err := h.signUps.GetActive(context.Background(), u.ID, event.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSignUp_RetryStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(5))
	u := h.addUser(t, "user", nil)

	repo := &conflictingSignUps{SignUpRepository: h.signUps}
	svc := h.build(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.SignUp(ctx, u.ID, u.ID, event.ID)
	assert.Error(t, err)
	assert.Less(t, repo.calls.Load(), int64(DefaultMaxRetries))
}

func TestCreateEvent_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	outsider := h.addUser(t, "outsider", nil)

	_, err := h.svc.CreateEvent(ctx, outsider.ID, &CreateEventRequest{OrganizationID: h.org, Title: "x", Capacity: intPtr(1)})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	start := testNow
	end := testNow.Add(-time.Minute)
	invalid := []CreateEventRequest{
		{Title: "", Capacity: intPtr(1)},
		{Title: "negative", Capacity: intPtr(-1)},
		{Title: "untracked slots", Slots: []CreateSlotRequest{{Name: "a", Capacity: 1}}},
		{Title: "bad slot", Capacity: intPtr(1), Slots: []CreateSlotRequest{{Name: "a", Capacity: -2}}},
		{Title: "bad window", Capacity: intPtr(1), SignUpsStartAt: &start, SignUpsEndAt: &end},
	}
	for _, req := range invalid {
		req.OrganizationID = h.org
		_, err := h.svc.CreateEvent(ctx, h.admin.ID, &req)
		assert.ErrorIs(t, err, domain.ErrInvalidEvent, req.Title)
	}
}

func TestGetSignUpStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(1))
	h.signUp(t, h.addUser(t, "a", nil), event.ID)
	h.signUp(t, h.addUser(t, "b", nil), event.ID)

	stats, err := h.svc.GetSignUpStats(ctx, h.admin.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Confirmed)
	assert.Equal(t, 1, stats.OnWaitlist)
	assert.Equal(t, 0, *stats.RemainingCapacity)

	_, err = h.svc.GetSignUpStats(ctx, h.admin.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func runConcurrentSignUps(t *testing.T, capacity, attempts int) {
	h := newHarness(t)
	event := h.addEvent(t, intPtr(capacity))

	users := make([]*user.User, attempts)
	for i := range users {
		users[i] = h.addUser(t, "racer", nil)
	}

	var confirmed, waitlisted atomic.Int64
	var g errgroup.Group
	for _, u := range users {
		g.Go(func() error {
			su, err := h.svc.SignUp(context.Background(), u.ID, u.ID, event.ID)
			if err != nil {
				return err
			}
			switch su.ParticipationStatus {
			case domain.StatusConfirmed:
				confirmed.Add(1)
			case domain.StatusOnWaitlist:
				waitlisted.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(capacity), confirmed.Load())
	assert.Equal(t, int64(attempts-capacity), waitlisted.Load())
	assert.Equal(t, 0, *h.event(t, event.ID).RemainingCapacity)

	var active int64
	require.NoError(t, h.db.Model(&domain.SignUp{}).Where("event_id = ? AND active = ?", event.ID, true).Count(&active).Error)
	assert.Equal(t, int64(attempts), active)
}

func TestSignUp_ConcurrentAttemptsFillCapacityExactly(t *testing.T) {
	runConcurrentSignUps(t, 20, 200)
}

func TestProcessPromotion_ConcurrentRetractionsPromoteDistinctUsers(t *testing.T) {
	const capacity, waitlisted, retracting = 8, 12, 5

	h := newHarness(t)
	ctx := context.Background()
	event := h.addEvent(t, intPtr(capacity), CreateSlotRequest{Name: "all", Capacity: capacity})

	confirmed := make([]*user.User, capacity)
	for i := range confirmed {
		confirmed[i] = h.addUser(t, "holder", graduationFor(3))
		require.Equal(t, domain.StatusConfirmed, h.signUp(t, confirmed[i], event.ID).ParticipationStatus)
	}
	queued := make([]*domain.SignUp, waitlisted)
	for i := range queued {
		queued[i] = h.signUp(t, h.addUser(t, "waiting", graduationFor(3)), event.ID)
		require.Equal(t, domain.StatusOnWaitlist, queued[i].ParticipationStatus)
	}

	var outOfBounds atomic.Int64
	checkBounds := func(ctx context.Context) error {
		current, err := h.events.GetByID(ctx, event.ID)
		if err != nil {
			return err
		}
		if r := *current.RemainingCapacity; r < 0 || r > capacity {
			outOfBounds.Add(1)
		}
		return nil
	}

	var g errgroup.Group
	for _, u := range confirmed[:retracting] {
		g.Go(func() error {
			if _, err := h.svc.RetractSignUp(ctx, u.ID, u.ID, event.ID); err != nil {
				return err
			}
			if err := checkBounds(ctx); err != nil {
				return err
			}
			if err := h.svc.ProcessPromotion(ctx, event.ID); err != nil {
				return err
			}
			return checkBounds(ctx)
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, outOfBounds.Load())

	// Each notice is one promotion, so duplicates would show up here.
	require.Equal(t, retracting, h.notifier.count())
	promotedUsers := make(map[uuid.UUID]bool)
	for _, notice := range h.notifier.notices {
		assert.False(t, promotedUsers[notice.UserID], "user %s promoted twice", notice.UserID)
		promotedUsers[notice.UserID] = true
	}

	for i, su := range queued {
		current, err := h.signUps.GetByID(ctx, su.ID)
		require.NoError(t, err)
		if i < retracting {
			assert.Equal(t, domain.StatusConfirmed, current.ParticipationStatus)
			assert.True(t, promotedUsers[su.UserID])
		} else {
			assert.Equal(t, domain.StatusOnWaitlist, current.ParticipationStatus)
		}
	}

	final := h.event(t, event.ID)
	assert.Equal(t, 0, *final.RemainingCapacity)
	require.Len(t, final.Slots, 1)
	assert.Equal(t, 0, final.Slots[0].RemainingCapacity)

	status := domain.StatusConfirmed
	active, err := h.signUps.ListByEvent(ctx, event.ID, &status)
	require.NoError(t, err)
	assert.Len(t, active, capacity)
}

func TestSignUp_TicketDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 2000-user ticket drop in short mode")
	}
	runConcurrentSignUps(t, 200, 2000)
}
