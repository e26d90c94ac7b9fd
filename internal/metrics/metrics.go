package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Batches by terminal status.
	SyncBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_batches_total",
			Help: "Offline sync batches processed, by terminal status",
		},
		[]string{"status"},
	)

	// Items by outcome: applied|duplicate|conflict.
	SyncItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Offline transactions processed, by outcome",
		},
		[]string{"outcome"},
	)

	SyncConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_conflicts_total",
			Help: "Rejected offline transactions, by resolution",
		},
		[]string{"resolution"},
	)

	// Reconciliation attempts: retried|unresolved.
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_reconciliations_total",
			Help: "Insufficient-balance reconciliations, by result",
		},
		[]string{"result"},
	)

	SyncBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_batch_duration_seconds",
			Help:    "Time spent processing one batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsPublishFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_events_publish_failed_total",
			Help: "Batch events that could not be published",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// Handler serves /metrics.
var Handler = promhttp.Handler

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPLatency,
			SyncBatchesTotal,
			SyncItemsTotal,
			SyncConflictsTotal,
			ReconciliationsTotal,
			SyncBatchDuration,
			EventsPublishFailed,
			WorkerQueueDepth,
		)
	})
}
