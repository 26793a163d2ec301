package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
)

// Queue is the in-process promotion queue. Jobs do not survive a restart;
// the reconciliation sweeper re-creates lost work.
type Queue struct {
	promotions chan interfaces.PromotionJob

	workers int
	policy  RetryPolicy
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	handler interfaces.PromotionHandler

	inFlight atomic.Int64
	delayed  atomic.Int64
	deadMu   sync.Mutex
	dead     []interfaces.DeadLetter
}

func NewInMemoryQueue(bufferSize, workers int, policy RetryPolicy) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		promotions: make(chan interfaces.PromotionJob, bufferSize),
		workers:    workers,
		policy:     policy,
	}
}

var _ interfaces.QueueService = (*Queue)(nil)

func (q *Queue) SetPromotionHandler(handler interfaces.PromotionHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

func (q *Queue) StartWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	if q.handler == nil {
		logger.Warn("Promotion handler not set, workers cannot process jobs")
		return
	}

	logger.Info("Starting %d queue workers", q.workers)

	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.promotionWorker(i)
	}

	q.started = true
	logger.Info("Queue workers started successfully")
}

func (q *Queue) StopWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}

	logger.Info("Stopping queue workers...")
	q.cancel()
	q.wg.Wait()
	q.started = false
	logger.Info("Queue workers stopped")
}

func (q *Queue) EnqueuePromotion(ctx context.Context, eventID uuid.UUID) error {
	return q.push(ctx, interfaces.NewPromotionJob(eventID))
}

func (q *Queue) push(ctx context.Context, job interfaces.PromotionJob) error {
	select {
	case q.promotions <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("promotion queue is full")
	}
}

func (q *Queue) DequeuePromotion(ctx context.Context) (*interfaces.PromotionJob, error) {
	select {
	case job := <-q.promotions:
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	q.deadMu.Lock()
	dead := len(q.dead)
	q.deadMu.Unlock()
	return interfaces.QueueStats{
		Pending:    int64(len(q.promotions)),
		Processing: q.inFlight.Load(),
		Delayed:    q.delayed.Load(),
		Dead:       int64(dead),
	}, nil
}

func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]interfaces.DeadLetter, error) {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	n := len(q.dead)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]interfaces.DeadLetter, n)
	copy(out, q.dead[:n])
	return out, nil
}

func (q *Queue) promotionWorker(workerID int) {
	defer q.wg.Done()

	logger.Info("Promotion worker %d started", workerID)

	for {
		select {
		case <-q.ctx.Done():
			logger.Info("Promotion worker %d stopped", workerID)
			return
		default:
			ctx, cancel := context.WithTimeout(q.ctx, DefaultDequeueTimeout)
			job, err := q.DequeuePromotion(ctx)
			cancel()

			if err != nil {
				continue
			}

			q.process(workerID, *job)
		}
	}
}

func (q *Queue) process(workerID int, job interfaces.PromotionJob) {
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	err := runJob("memory", workerID, q.handler, job)
	if err == nil {
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if q.policy.Exhausted(job.Attempts) {
		q.bury(job, err.Error())
		return
	}

	q.delayed.Add(1)
	time.AfterFunc(q.policy.Delay(job.Attempts), func() {
		q.delayed.Add(-1)
		if err := q.push(context.Background(), job); err != nil {
			q.bury(job, err.Error())
		}
	})
}

func (q *Queue) bury(job interfaces.PromotionJob, reason string) {
	metrics.QueueJobs.WithLabelValues("memory", "dead").Inc()
	logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"event_id": job.EventID,
		"attempts": job.Attempts,
	}).Errorf("Promotion job moved to dead letters: %s", reason)

	q.deadMu.Lock()
	q.dead = append(q.dead, interfaces.DeadLetter{Job: job, Reason: reason, FailedAt: time.Now().UTC()})
	q.deadMu.Unlock()
}
