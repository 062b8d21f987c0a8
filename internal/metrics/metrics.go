// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "speaking_coach"

// Outcome labels for RecordingsProcessed.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
)

var (
	RecordingsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_submitted_total",
		Help:      "Recordings accepted for analysis.",
	})

	RecordingsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_processed_total",
		Help:      "Recordings taken off the queue, by outcome.",
	}, []string{"outcome"})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recording_processing_seconds",
		Help:      "Wall time spent processing one recording, including provider retries.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	QueueRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_rejections_total",
		Help:      "Submissions refused because the analysis queue was full.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Analysis queue length observed at the last enqueue.",
	})

	RecordingsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_requeued_total",
		Help:      "Pending recordings pushed back onto the queue by the sweep.",
	})

	SnapshotsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "daily_snapshots_total",
		Help:      "Daily progress snapshot attempts, by result.",
	}, []string{"result"})

	SummaryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summary_cache_requests_total",
		Help:      "Progress summary cache lookups, by hit or miss.",
	}, []string{"result"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_deny_total",
		Help:      "Requests denied by the rate limiter.",
	}, []string{"route"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
