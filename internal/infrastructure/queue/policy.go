package queue

import (
	"context"
	"time"

	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/internal/metrics"
	"signup-service/pkg/logger"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultJobTimeout     = 30 * time.Second
	DefaultDequeueTimeout = 2 * time.Second
)

// RetryPolicy decides how failed jobs come back.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    time.Minute,
	}
}

// Delay is the wait before the next attempt of a job that has already
// failed attempts times.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy().BaseDelay
	}
	var b retry.Backoff = retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	d := base
	for i := 0; i < attempts; i++ {
		d, _ = b.Next()
	}
	return d
}

// Exhausted reports whether a job with attempts failures goes to the dead
// letters.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// runJob executes the handler outside the workers' lifetime context so a
// shutdown lets the in-flight promotion finish.
func runJob(queueName string, workerID int, handler interfaces.PromotionHandler, job interfaces.PromotionJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultJobTimeout)
	defer cancel()

	entry := logger.WithFields(map[string]interface{}{
		"queue":    queueName,
		"worker":   workerID,
		"job_id":   job.ID,
		"event_id": job.EventID,
		"attempts": job.Attempts,
	})

	if err := handler.ProcessPromotion(ctx, job.EventID); err != nil {
		metrics.QueueJobs.WithLabelValues(queueName, "failed").Inc()
		entry.WithError(err).Warn("Promotion job failed")
		return err
	}

	metrics.QueueJobs.WithLabelValues(queueName, "succeeded").Inc()
	entry.Debug("Promotion job processed")
	return nil
}
