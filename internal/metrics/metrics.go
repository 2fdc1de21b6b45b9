// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics defines the Prometheus collectors exposed on
// /metrics. All collectors are registered at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncDaysTotal counts calendar days processed by the sync engine,
	// labeled by outcome (completed, skipped, failed).
	SyncDaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapparr_sync_days_total",
		Help: "Calendar days processed by history sync, by outcome",
	}, []string{"outcome"})

	// SyncEventsImported counts watch events written to the database.
	SyncEventsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wrapparr_sync_events_imported_total",
		Help: "Watch events imported from Tautulli history",
	})

	// SyncRunDuration observes full sync run durations, labeled by
	// scope (user, global).
	SyncRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wrapparr_sync_run_duration_seconds",
		Help:    "Duration of full sync runs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"scope"})

	// UpstreamRequestDuration observes Tautulli API request durations,
	// labeled by command.
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wrapparr_upstream_request_duration_seconds",
		Help:    "Duration of Tautulli API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"cmd"})

	// EnrichmentOutcomes counts enrichment pipeline results, labeled by
	// outcome (scored, unscored, failed).
	EnrichmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapparr_enrichment_outcomes_total",
		Help: "Metadata enrichment results, by outcome",
	}, []string{"outcome"})

	// StatsGenerationDuration observes per-user stats computation time.
	StatsGenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wrapparr_stats_generation_duration_seconds",
		Help:    "Duration of wrapped statistics generation per user",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// StatsCacheHits counts stats served from the per-user cache.
	StatsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wrapparr_stats_cache_hits_total",
		Help: "Stats requests served from the per-user cache",
	})

	// StatsCacheMisses counts stats requests that required computation.
	StatsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wrapparr_stats_cache_misses_total",
		Help: "Stats requests that required recomputation",
	})

	// CircuitBreakerState reports breaker state (0 closed, 1 half-open,
	// 2 open), labeled by breaker name.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wrapparr_circuit_breaker_state",
		Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open",
	}, []string{"name"})

	// CircuitBreakerRequests counts requests through each breaker,
	// labeled by result (success, failure, rejected).
	CircuitBreakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapparr_circuit_breaker_requests_total",
		Help: "Requests through circuit breakers, by result",
	}, []string{"name", "result"})

	// CircuitBreakerTransitions counts breaker state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapparr_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})

	// CircuitBreakerConsecutiveFailures tracks consecutive failures per breaker.
	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wrapparr_circuit_breaker_consecutive_failures",
		Help: "Consecutive failures seen by each circuit breaker",
	}, []string{"name"})

	// HTTPRequestDuration observes API handler latencies.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wrapparr_http_request_duration_seconds",
		Help:    "Duration of HTTP API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
