package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PromotionJobRecord is a row of the promotion outbox table.
type PromotionJobRecord struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EventID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	Attempts    int        `gorm:"not null;default:0"`
	AvailableAt time.Time  `gorm:"not null;index"`
	LockedUntil *time.Time `gorm:"index"`
	LockedBy    string
	LastError   string
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (PromotionJobRecord) TableName() string { return "promotion_jobs" }

// PromotionDeadLetterRecord keeps jobs that failed every attempt.
type PromotionDeadLetterRecord struct {
	ID         uint      `gorm:"primaryKey"`
	JobID      uuid.UUID `gorm:"type:uuid;not null"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Attempts   int       `gorm:"not null"`
	LastError  string
	EnqueuedAt time.Time
	FailedAt   time.Time `gorm:"not null"`
}

func (PromotionDeadLetterRecord) TableName() string { return "promotion_dead_letters" }

// Models lists the tables the database queue needs.
func Models() []interface{} {
	return []interface{}{&PromotionJobRecord{}, &PromotionDeadLetterRecord{}}
}

// DatabaseQueue is an outbox-table promotion queue. Jobs are claimed with a
// conditional update that sets a lease; a lease that expires makes the job
// visible again, which gives at-least-once delivery across restarts.
type DatabaseQueue struct {
	db *gorm.DB

	workers      int
	policy       RetryPolicy
	pollInterval time.Duration
	visibility   time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	started      bool
	mu           sync.RWMutex

	handler interfaces.PromotionHandler
	now     func() time.Time
}

func NewDatabaseQueue(db *gorm.DB, workers int, policy RetryPolicy, pollInterval, visibility time.Duration) *DatabaseQueue {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	if visibility <= 0 {
		visibility = time.Minute
	}
	return &DatabaseQueue{
		db:           db,
		workers:      workers,
		policy:       policy,
		pollInterval: pollInterval,
		visibility:   visibility,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ interfaces.QueueService = (*DatabaseQueue)(nil)

func (q *DatabaseQueue) SetPromotionHandler(handler interfaces.PromotionHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

func (q *DatabaseQueue) StartWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	if q.handler == nil {
		logger.Warn("Promotion handler not set, workers cannot process jobs")
		return
	}

	logger.Info("Starting %d database queue workers", q.workers)

	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.promotionWorker(i)
	}

	q.started = true
	logger.Info("Database queue workers started successfully")
}

func (q *DatabaseQueue) StopWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}

	logger.Info("Stopping database queue workers...")
	q.cancel()
	q.wg.Wait()
	q.started = false
	logger.Info("Database queue workers stopped")
}

func (q *DatabaseQueue) EnqueuePromotion(ctx context.Context, eventID uuid.UUID) error {
	job := interfaces.NewPromotionJob(eventID)
	record := &PromotionJobRecord{
		ID:          job.ID,
		EventID:     eventID,
		AvailableAt: q.now(),
	}
	if err := q.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to enqueue promotion job for event %s: %w", eventID, err)
	}
	logger.Debug("Enqueued promotion job for event: %s", eventID)
	return nil
}

// Claim leases the oldest visible job to owner. It returns nil when nothing
// is ready.
func (q *DatabaseQueue) Claim(ctx context.Context, owner string) (*PromotionJobRecord, error) {
	now := q.now()

	var candidates []PromotionJobRecord
	err := q.db.WithContext(ctx).
		Where("available_at <= ? AND (locked_until IS NULL OR locked_until < ?)", now, now).
		Order("available_at ASC").
		Limit(5).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch promotion jobs: %w", err)
	}

	lease := now.Add(q.visibility)
	for _, c := range candidates {
		res := q.db.WithContext(ctx).Model(&PromotionJobRecord{}).
			Where("id = ? AND (locked_until IS NULL OR locked_until < ?)", c.ID, now).
			Updates(map[string]interface{}{
				"locked_until": lease,
				"locked_by":    owner,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim promotion job: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			c.LockedUntil = &lease
			c.LockedBy = owner
			return &c, nil
		}
	}
	return nil, nil
}

// Complete deletes a finished job.
func (q *DatabaseQueue) Complete(ctx context.Context, id uuid.UUID) error {
	return q.db.WithContext(ctx).Delete(&PromotionJobRecord{}, "id = ?", id).Error
}

// Fail reschedules a job or moves it to the dead-letter table.
func (q *DatabaseQueue) Fail(ctx context.Context, record *PromotionJobRecord, cause error) error {
	attempts := record.Attempts + 1

	if q.policy.Exhausted(attempts) {
		err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dead := &PromotionDeadLetterRecord{
				JobID:      record.ID,
				EventID:    record.EventID,
				Attempts:   attempts,
				LastError:  cause.Error(),
				EnqueuedAt: record.CreatedAt,
				FailedAt:   q.now(),
			}
			if err := tx.Create(dead).Error; err != nil {
				return err
			}
			return tx.Delete(&PromotionJobRecord{}, "id = ?", record.ID).Error
		})
		if err == nil {
			metrics.QueueJobs.WithLabelValues("database", "dead").Inc()
			logger.WithFields(map[string]interface{}{
				"job_id":   record.ID,
				"event_id": record.EventID,
				"attempts": attempts,
			}).Errorf("Promotion job moved to dead letters: %v", cause)
		}
		return err
	}

	return q.db.WithContext(ctx).Model(&PromotionJobRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"attempts":     attempts,
			"available_at": q.now().Add(q.policy.Delay(attempts)),
			"locked_until": nil,
			"locked_by":    "",
			"last_error":   cause.Error(),
		}).Error
}

func (q *DatabaseQueue) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	now := q.now()
	var stats interfaces.QueueStats
	db := q.db.WithContext(ctx)

	if err := db.Model(&PromotionJobRecord{}).
		Where("available_at <= ? AND (locked_until IS NULL OR locked_until < ?)", now, now).
		Count(&stats.Pending).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&PromotionJobRecord{}).
		Where("locked_until >= ?", now).
		Count(&stats.Processing).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&PromotionJobRecord{}).
		Where("available_at > ? AND (locked_until IS NULL OR locked_until < ?)", now, now).
		Count(&stats.Delayed).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&PromotionDeadLetterRecord{}).Count(&stats.Dead).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

func (q *DatabaseQueue) DeadLetters(ctx context.Context, limit int) ([]interfaces.DeadLetter, error) {
	var records []PromotionDeadLetterRecord
	tx := q.db.WithContext(ctx).Order("failed_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	letters := make([]interfaces.DeadLetter, 0, len(records))
	for _, r := range records {
		letters = append(letters, interfaces.DeadLetter{
			Job: interfaces.PromotionJob{
				ID:         r.JobID,
				EventID:    r.EventID,
				Attempts:   r.Attempts,
				EnqueuedAt: r.EnqueuedAt,
				LastError:  r.LastError,
			},
			Reason:   r.LastError,
			FailedAt: r.FailedAt,
		})
	}
	return letters, nil
}

func (q *DatabaseQueue) promotionWorker(workerID int) {
	defer q.wg.Done()

	owner := fmt.Sprintf("worker-%d-%s", workerID, uuid.NewString()[:8])
	logger.Info("Database promotion worker %d started", workerID)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			logger.Info("Database promotion worker %d stopped", workerID)
			return
		case <-ticker.C:
			// Drain everything ready before waiting for the next tick.
			for q.processOne(workerID, owner) {
				if q.ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (q *DatabaseQueue) processOne(workerID int, owner string) bool {
	record, err := q.Claim(q.ctx, owner)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("Database promotion worker %d error: %v", workerID, err)
		}
		return false
	}
	if record == nil {
		return false
	}

	job := interfaces.PromotionJob{
		ID:         record.ID,
		EventID:    record.EventID,
		Attempts:   record.Attempts,
		EnqueuedAt: record.CreatedAt,
		LastError:  record.LastError,
	}

	ctx := context.Background()
	if err := runJob("database", workerID, q.handler, job); err != nil {
		if ferr := q.Fail(ctx, record, err); ferr != nil {
			logger.Error("Database promotion worker %d could not reschedule job %s: %v", workerID, record.ID, ferr)
		}
		return true
	}
	if err := q.Complete(ctx, record.ID); err != nil {
		logger.Error("Database promotion worker %d could not complete job %s: %v", workerID, record.ID, err)
	}
	return true
}
