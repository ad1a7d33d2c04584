package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch orchestration.
var (
	batchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_batch_runs_total",
		Help: "Total batch runs by terminal status",
	}, []string{"status"})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_batch_items_total",
		Help: "Total items processed by final outcome",
	}, []string{"outcome"}) // "success", "failure"

	batchCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_batch_cache_hits_total",
		Help: "Total items satisfied from the result cache without a remote call",
	})

	batchSubBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_batch_sub_batches_total",
		Help: "Total sub-batches dispatched",
	})

	batchRetryRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_batch_retry_rounds",
		Help:    "Retry rounds executed per batch run",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	batchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_batch_run_duration_seconds",
		Help:    "Batch run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)
