package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/domain/user"
	"signup-service/internal/infrastructure/database"
	"signup-service/internal/infrastructure/payment"
	"signup-service/internal/infrastructure/repository"
	interfaces "signup-service/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 2026-10-01 is in the academic year ending 2027.
var testNow = time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

func graduationFor(grade int) *int {
	year := 2027 + 5 - grade
	return &year
}

type recordingQueue struct {
	mu      sync.Mutex
	events  []uuid.UUID
	failing bool
}

func (q *recordingQueue) EnqueuePromotion(ctx context.Context, eventID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failing {
		return errors.New("queue unavailable")
	}
	q.events = append(q.events, eventID)
	return nil
}

func (q *recordingQueue) enqueued() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uuid.UUID(nil), q.events...)
}

func (q *recordingQueue) SetPromotionHandler(interfaces.PromotionHandler) {}
func (q *recordingQueue) StartWorkers()                                  {}
func (q *recordingQueue) StopWorkers()                                   {}
func (q *recordingQueue) Stats(context.Context) (interfaces.QueueStats, error) {
	return interfaces.QueueStats{}, nil
}
func (q *recordingQueue) DeadLetters(context.Context, int) ([]interfaces.DeadLetter, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []interfaces.PromotionNotice
	err     error
}

func (n *recordingNotifier) NotifyPromoted(ctx context.Context, notice interfaces.PromotionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type harness struct {
	db       *gorm.DB
	svc      *SignUpService
	users    user.UserRepository
	members  user.MembershipRepository
	signUps  domain.SignUpRepository
	events   domain.EventRepository
	queue    *recordingQueue
	notifier *recordingNotifier
	orders   *payment.LedgerOrderService

	org   uuid.UUID
	admin *user.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "signup.db")}
	db, err := database.NewConnection(cfg)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	h := &harness{
		db:       db,
		users:    repository.NewUserRepository(db),
		members:  repository.NewMembershipRepository(db),
		signUps:  repository.NewSignUpRepository(db),
		events:   repository.NewEventRepository(db),
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
		orders:   payment.NewLedgerOrderService(),
		org:      uuid.New(),
	}
	h.svc = h.build(h.signUps)

	h.admin = h.addUser(t, "organizer", nil)
	require.NoError(t, h.members.AddMember(context.Background(), &user.OrganizationMember{
		OrganizationID: h.org,
		UserID:         h.admin.ID,
		Role:           user.RoleAdmin,
	}))
	return h
}

func (h *harness) build(signUps domain.SignUpRepository) *SignUpService {
	sqlDB, _ := h.db.DB()
	svc := NewSignUpService(Dependencies{
		Events:      h.events,
		SignUps:     signUps,
		Stats:       repository.NewStatsRepository(sqlDB, repository.SQLDriverName(database.DriverSQLite)),
		Users:       h.users,
		Memberships: h.members,
		Queue:       h.queue,
		Notifier:    h.notifier,
		Orders:      h.orders,
	}, Options{BackoffBase: time.Microsecond, BackoffMax: 50 * time.Microsecond})
	svc.now = func() time.Time { return testNow }
	return svc
}

func (h *harness) addUser(t *testing.T, name string, graduation *int) *user.User {
	t.Helper()
	u := user.NewUser(name+"-"+uuid.NewString()[:8], name+"-"+uuid.NewString()[:8]+"@example.com", name, "Test", graduation)
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func (h *harness) addSuperUser(t *testing.T) *user.User {
	t.Helper()
	u := user.NewUser("root-"+uuid.NewString()[:8], "root-"+uuid.NewString()[:8]+"@example.com", "Root", "User", nil)
	u.IsSuperUser = true
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func (h *harness) addEvent(t *testing.T, capacity *int, slots ...CreateSlotRequest) *domain.Event {
	t.Helper()
	event, err := h.svc.CreateEvent(context.Background(), h.admin.ID, &CreateEventRequest{
		OrganizationID: h.org,
		Title:          "Spring trip",
		Capacity:       capacity,
		SignUpsEnabled: true,
		Slots:          slots,
	})
	require.NoError(t, err)
	return event
}

func (h *harness) event(t *testing.T, id uuid.UUID) *domain.Event {
	t.Helper()
	event, err := h.events.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, event)
	return event
}

func (h *harness) signUp(t *testing.T, u *user.User, eventID uuid.UUID) *domain.SignUp {
	t.Helper()
	su, err := h.svc.SignUp(context.Background(), u.ID, u.ID, eventID)
	require.NoError(t, err)
	return su
}

func intPtr(v int) *int { return &v }
