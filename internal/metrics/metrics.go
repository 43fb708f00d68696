// Package metrics holds the prometheus collectors shared by the autocomplete packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tagserve"

var (
	// CacheLookups counts suggestion cache lookups.
	// Labels: result (hit, miss)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Suggestion cache lookups by result",
	}, []string{"result"})

	// RemoteFetches counts server-side suggestion requests.
	// Labels: status (ok, error, shared)
	RemoteFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "fetches_total",
		Help:      "Server-side suggestion fetches by status",
	}, []string{"status"})

	// StaleResponses counts remote responses dropped because the term changed.
	StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "stale_responses_total",
		Help:      "Remote responses discarded for a since-changed term",
	})

	// IndexLoads counts compiled index loads.
	// Labels: status (ok, fetch_error, decode_error, cached, replaced)
	IndexLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "loads_total",
		Help:      "Compiled index loads by status",
	}, []string{"status"})

	// SearchLatency measures local prefix search time.
	SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "search_seconds",
		Help:      "Local prefix search latency in seconds",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// HistoryWrites counts history persistence attempts.
	// Labels: status (ok, error, skipped)
	HistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "writes_total",
		Help:      "History persistence attempts by status",
	}, []string{"status"})
)
