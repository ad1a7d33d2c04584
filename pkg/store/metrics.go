package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreHits tracks lookups that found a record.
	StoreHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_store_hits_total",
			Help: "Total number of result store lookups that found a record",
		},
	)

	// StoreMisses tracks lookups for unknown identifiers.
	StoreMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_store_misses_total",
			Help: "Total number of result store lookups with no record",
		},
	)

	// StoreUpserts tracks records written by outcome of the attempt.
	StoreUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_store_upserts_total",
			Help: "Total number of tracking results written to the store",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	// StoreErrors tracks store operation errors.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_store_errors_total",
			Help: "Total number of result store operation errors",
		},
		[]string{"operation"}, // "lookup", "upsert", "delete"
	)
)
