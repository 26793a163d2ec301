package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	pendingKeySuffix    = "promotion:pending"
	processingKeySuffix = "promotion:processing"
	delayedKeySuffix    = "promotion:delayed"
	deadKeySuffix       = "promotion:dead"
	WorkerSleepDuration = 50 * time.Millisecond
)

// RedisQueue keeps promotion jobs in Redis lists. A worker moves a job from
// the pending list to the processing list atomically and removes it only
// after the handler finished, so a crash leaves it recoverable.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string

	workers      int
	policy       RetryPolicy
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	started      bool
	mu           sync.RWMutex

	handler interfaces.PromotionHandler
}

// NewRedisQueue creates a new Redis-based queue service
func NewRedisQueue(client redis.UniversalClient, prefix string, workers int, policy RetryPolicy, pollInterval time.Duration) *RedisQueue {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &RedisQueue{
		client:       client,
		prefix:       prefix,
		workers:      workers,
		policy:       policy,
		pollInterval: pollInterval,
	}
}

var _ interfaces.QueueService = (*RedisQueue)(nil)

func (rq *RedisQueue) key(suffix string) string {
	if rq.prefix == "" {
		return suffix
	}
	return rq.prefix + ":" + suffix
}

func (rq *RedisQueue) SetPromotionHandler(handler interfaces.PromotionHandler) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.handler = handler
}

func (rq *RedisQueue) StartWorkers() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.started {
		return
	}

	if rq.handler == nil {
		logger.Warn("Promotion handler not set, workers cannot process jobs")
		return
	}

	rq.ctx, rq.cancel = context.WithCancel(context.Background())

	if n, err := rq.recoverProcessing(rq.ctx); err != nil {
		logger.Error("Failed to recover in-flight promotion jobs: %v", err)
	} else if n > 0 {
		logger.Warn("Recovered %d in-flight promotion jobs", n)
	}

	logger.Info("Starting %d Redis queue workers", rq.workers)

	for i := 0; i < rq.workers; i++ {
		rq.wg.Add(1)
		go rq.promotionWorker(i)
	}

	rq.wg.Add(1)
	go rq.delayedMover()

	rq.started = true
	logger.Info("Redis queue workers started successfully")
}

func (rq *RedisQueue) StopWorkers() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if !rq.started {
		return
	}

	logger.Info("Stopping Redis queue workers...")
	rq.cancel()
	rq.wg.Wait()
	rq.started = false
	logger.Info("Redis queue workers stopped")
}

// EnqueuePromotion adds a promotion job to the Redis queue
func (rq *RedisQueue) EnqueuePromotion(ctx context.Context, eventID uuid.UUID) error {
	data, err := json.Marshal(interfaces.NewPromotionJob(eventID))
	if err != nil {
		return fmt.Errorf("failed to marshal promotion job: %w", err)
	}

	if err := rq.client.LPush(ctx, rq.key(pendingKeySuffix), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue promotion job for event %s: %w", eventID, err)
	}

	logger.Debug("Enqueued promotion job for event: %s", eventID)
	return nil
}

// DequeuePromotion claims the oldest pending job. It returns the raw payload
// which must be passed back to ack or fail.
func (rq *RedisQueue) DequeuePromotion(ctx context.Context) (*interfaces.PromotionJob, string, error) {
	raw, err := rq.client.BRPopLPush(ctx, rq.key(pendingKeySuffix), rq.key(processingKeySuffix), DefaultDequeueTimeout).Result()
	if err != nil {
		if err == redis.Nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to dequeue promotion job: %w", err)
	}

	var job interfaces.PromotionJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, raw, fmt.Errorf("failed to unmarshal promotion job: %w", err)
	}
	return &job, raw, nil
}

func (rq *RedisQueue) ack(ctx context.Context, raw string) error {
	return rq.client.LRem(ctx, rq.key(processingKeySuffix), 1, raw).Err()
}

func (rq *RedisQueue) fail(ctx context.Context, raw string, job interfaces.PromotionJob, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()

	if rq.policy.Exhausted(job.Attempts) {
		data, err := json.Marshal(interfaces.DeadLetter{Job: job, Reason: cause.Error(), FailedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		_, err = rq.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, rq.key(processingKeySuffix), 1, raw)
			pipe.LPush(ctx, rq.key(deadKeySuffix), data)
			return nil
		})
		if err == nil {
			metrics.QueueJobs.WithLabelValues("redis", "dead").Inc()
			logger.WithFields(map[string]interface{}{
				"job_id":   job.ID,
				"event_id": job.EventID,
				"attempts": job.Attempts,
			}).Errorf("Promotion job moved to dead letters: %v", cause)
		}
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	readyAt := time.Now().Add(rq.policy.Delay(job.Attempts))
	_, err = rq.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, rq.key(processingKeySuffix), 1, raw)
		pipe.ZAdd(ctx, rq.key(delayedKeySuffix), &redis.Z{
			Score:  float64(readyAt.UnixMilli()),
			Member: data,
		})
		return nil
	})
	return err
}

// promoteDue moves delayed jobs whose retry time has passed back to the
// pending list. ZREM decides which mover owns a job.
func (rq *RedisQueue) promoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := rq.client.ZRangeByScore(ctx, rq.key(delayedKeySuffix), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 100,
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, member := range due {
		removed, err := rq.client.ZRem(ctx, rq.key(delayedKeySuffix), member).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := rq.client.LPush(ctx, rq.key(pendingKeySuffix), member).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// recoverProcessing returns jobs stranded in the processing list by a
// crashed process. It assumes no other consumer is running.
func (rq *RedisQueue) recoverProcessing(ctx context.Context) (int, error) {
	n := 0
	for {
		err := rq.client.RPopLPush(ctx, rq.key(processingKeySuffix), rq.key(pendingKeySuffix)).Err()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (rq *RedisQueue) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	pipe := rq.client.Pipeline()
	pending := pipe.LLen(ctx, rq.key(pendingKeySuffix))
	processing := pipe.LLen(ctx, rq.key(processingKeySuffix))
	delayed := pipe.ZCard(ctx, rq.key(delayedKeySuffix))
	dead := pipe.LLen(ctx, rq.key(deadKeySuffix))
	if _, err := pipe.Exec(ctx); err != nil {
		return interfaces.QueueStats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return interfaces.QueueStats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

func (rq *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]interfaces.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := rq.client.LRange(ctx, rq.key(deadKeySuffix), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	letters := make([]interfaces.DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl interfaces.DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			logger.Warn("Skipping malformed dead letter: %v", err)
			continue
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

func (rq *RedisQueue) promotionWorker(workerID int) {
	defer rq.wg.Done()

	logger.Info("Redis promotion worker %d started", workerID)

	for {
		select {
		case <-rq.ctx.Done():
			logger.Info("Redis promotion worker %d stopped", workerID)
			return
		default:
			job, raw, err := rq.DequeuePromotion(rq.ctx)
			if err != nil {
				logger.Error("Redis promotion worker %d error: %v", workerID, err)
				if raw != "" {
					// Unparseable payloads would be retried forever.
					_ = rq.ack(context.Background(), raw)
				}
				time.Sleep(WorkerSleepDuration)
				continue
			}
			if job == nil {
				continue
			}

			// Acks use a fresh context so a shutdown does not strand the job.
			ctx := context.Background()
			if err := runJob("redis", workerID, rq.handler, *job); err != nil {
				if ferr := rq.fail(ctx, raw, *job, err); ferr != nil {
					logger.Error("Redis promotion worker %d could not reschedule job %s: %v", workerID, job.ID, ferr)
				}
				continue
			}
			if err := rq.ack(ctx, raw); err != nil {
				logger.Error("Redis promotion worker %d could not ack job %s: %v", workerID, job.ID, err)
			}
		}
	}
}

func (rq *RedisQueue) delayedMover() {
	defer rq.wg.Done()

	ticker := time.NewTicker(rq.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rq.ctx.Done():
			return
		case <-ticker.C:
			if _, err := rq.promoteDue(rq.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Failed to move delayed promotion jobs: %v", err)
			}
		}
	}
}
