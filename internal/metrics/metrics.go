// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts external API calls by upstream and outcome
	// (ok, error, status, rejected).
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animeshelf_upstream_requests_total",
		Help: "External API requests by upstream and outcome.",
	}, []string{"upstream", "outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animeshelf_upstream_request_duration_seconds",
		Help:    "External API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "animeshelf_upstream_breaker_open",
		Help: "1 when the upstream circuit breaker is open.",
	}, []string{"upstream"})

	ProfileMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animeshelf_profile_mutations_total",
		Help: "Profile document mutations by operation and outcome.",
	}, []string{"op", "outcome"})

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "animeshelf_profile_version_conflicts_total",
		Help: "Optimistic concurrency conflicts on profile writes.",
	})

	EnrichmentCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animeshelf_enrichment_cache_total",
		Help: "Enrichment cache lookups by result (hit, miss).",
	}, []string{"result"})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animeshelf_profile_subscriptions",
		Help: "Open profile subscriptions.",
	})
)
