package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcadmin_api_requests_total",
			Help: "Number of API requests",
		},
		[]string{"method", "path", "status"},
	)
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcadmin_api_latency_seconds",
			Help:    "API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	SchemaBuilds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcadmin_schema_build_seconds",
			Help:    "Form schema build latency including widget prefetch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "mode", "status"},
	)
	ActionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcadmin_action_runs_total",
			Help: "Action runs by outcome (dispatched, completed, failed)",
		},
		[]string{"model", "action", "kind"},
	)
	ActionRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcadmin_action_rows_total",
			Help: "Rows processed by actions by result (affected, skipped, error)",
		},
		[]string{"model", "action", "result"},
	)
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcadmin_action_duration_seconds",
			Help:    "Duration of synchronous and background action runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"model", "action", "background"},
	)
	Models = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gcadmin_models_total",
			Help: "Number of registered model admins",
		},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gcadmin_action_queue_depth",
			Help: "Jobs waiting in the background action queue",
		},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequests,
		APILatency,
		SchemaBuilds,
		ActionRuns,
		ActionRows,
		ActionDuration,
		Models,
		QueueDepth,
	)
}

// Status renders an error as a metric label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Since observes the seconds elapsed from start on h.
func Since(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// QueueLengther reports the number of queued jobs.
type QueueLengther interface {
	QueueLen(ctx context.Context) (int64, error)
}

// StartQueueGauge updates QueueDepth every interval until ctx is done.
func StartQueueGauge(ctx context.Context, q QueueLengther, interval time.Duration) {
	if q == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := q.QueueLen(ctx)
				if err != nil {
					continue
				}
				QueueDepth.Set(float64(n))
			}
		}
	}()
}
