package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the submission defense pipeline.
var (
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formify_decisions_total",
			Help: "Submission decisions by outcome reason",
		},
		[]string{"reason"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formify_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RateLimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formify_ratelimit_checks_total",
			Help: "Rate limit checks by operation and outcome",
		},
		[]string{"operation", "allowed"},
	)

	RateLimitFailOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formify_ratelimit_fail_open_total",
			Help: "Rate limit checks allowed because the counter store was unavailable",
		},
		[]string{"operation"},
	)

	PowChallengesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formify_pow_challenges_issued_total",
			Help: "Proof-of-work challenges issued to high-volume projects",
		},
	)

	PowVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formify_pow_verifications_total",
			Help: "Proof-of-work solution verifications by result",
		},
		[]string{"valid"},
	)

	StoreUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formify_store_up",
			Help: "Whether the shared counter store is reachable (1=up, 0=down)",
		},
	)
)
