package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signup_attempts_total", Help: "Sign-up attempts by outcome"},
		[]string{"outcome"},
	)
	SignUpConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signup_version_conflicts_total", Help: "Optimistic conflicts retried by sign-up and promotion"},
	)
	Terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signup_terminations_total", Help: "Retractions and removals"},
		[]string{"status", "released"},
	)
	Promotions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signup_promotions_total", Help: "Promotion runs by outcome"},
		[]string{"outcome"},
	)
	QueueJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "promotion_queue_jobs_total", Help: "Promotion jobs handled by the queue"},
		[]string{"queue", "result"},
	)
	EnqueueFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "promotion_enqueue_failures_total", Help: "Promotion jobs that could not be enqueued"},
	)
	NotificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "promotion_notification_failures_total", Help: "Promotion notices that failed to send"},
	)
	SlotReleaseSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signup_slot_release_skipped_total", Help: "Released sign-ups whose slot was already at full capacity"},
	)
	SweeperEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "promotion_sweeper_enqueued_total", Help: "Jobs enqueued by the reconciliation sweeper"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SignUps,
			SignUpConflicts,
			Terminations,
			Promotions,
			QueueJobs,
			EnqueueFailures,
			NotificationFailures,
			SlotReleaseSkipped,
			SweeperEnqueued,
			HTTPRequestDuration,
		)
	})
}
