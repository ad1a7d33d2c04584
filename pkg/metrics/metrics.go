// Package metrics provides the centralized Prometheus metrics registry for
// the waybill tracker. All metrics are defined in their respective packages
// (batch, carrier, quota, store) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the tracker.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Quota Metrics (pkg/quota):
//   - tracker_quota_calls_total{outcome} (Counter): Recorded carrier calls by outcome (success, failure)
//   - tracker_quota_remaining (Gauge): Calls remaining in today's quota window
//   - tracker_quota_persist_errors_total (Counter): Failed writes of usage counters to Redis
//
// Store Metrics (pkg/store):
//   - tracker_store_hits_total (Counter): Lookups that found a stored record
//   - tracker_store_misses_total (Counter): Lookups that found nothing
//   - tracker_store_upserts_total{outcome} (Counter): Upserted records by attempt outcome
//   - tracker_store_errors_total{operation} (Counter): Store operation errors
//
// Carrier Metrics (pkg/carrier):
//   - tracker_carrier_requests_total{status} (Counter): Carrier API requests by HTTP status
//   - tracker_carrier_request_duration_seconds (Histogram): Carrier request duration
//   - tracker_carrier_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, payload)
//
// Batch Metrics (pkg/batch):
//   - tracker_batch_runs_total{status} (Counter): Batch runs by terminal status (completed, cancelled)
//   - tracker_batch_items_total{outcome} (Counter): Processed items by final outcome (success, failure)
//   - tracker_batch_cache_hits_total (Counter): Items satisfied from fresh stored records
//   - tracker_batch_sub_batches_total (Counter): Dispatched sub-batches
//   - tracker_batch_retry_rounds (Histogram): Retry rounds executed per run
//   - tracker_batch_run_duration_seconds (Histogram): Wall-clock duration per run
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(tracker_batch_cache_hits_total[5m])) /
//   sum(rate(tracker_batch_items_total[5m]))
//
//   # Quota Headroom
//   tracker_quota_remaining < 25
//
//   # Carrier Error Rate
//   rate(tracker_carrier_errors_total[5m])
//
//   # P95 Carrier Latency
//   histogram_quantile(0.95, rate(tracker_carrier_request_duration_seconds_bucket[5m]))
//
//   # Item Failure Rate
//   rate(tracker_batch_items_total{outcome="failure"}[5m]) /
//   rate(tracker_batch_items_total[5m])
