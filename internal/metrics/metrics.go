// Package metrics defines Prometheus instrumentation for the booth daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session lifecycle metrics
var (
	// SessionTransitionsTotal tracks committed state transitions by edge
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_session_transitions_total",
			Help: "Committed session state transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	// SessionsActive tracks sessions currently held in the store
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booth_sessions_active",
			Help: "Sessions currently held in the in-memory store",
		},
	)

	// SessionConflictsTotal tracks rejected lifecycle requests
	SessionConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_session_conflicts_total",
			Help: "Lifecycle requests rejected as conflicts, by operation",
		},
		[]string{"operation"},
	)
)

// Background job metrics
var (
	// JobDurationSeconds tracks capture/AI job phase durations
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booth_job_duration_seconds",
			Help:    "Background job phase duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"phase"},
	)

	// JobFailuresTotal tracks failed capture/AI jobs by phase
	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_job_failures_total",
			Help: "Background job failures by phase",
		},
		[]string{"phase"},
	)

	// JobsSupersededTotal tracks async results discarded because the session moved on
	JobsSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booth_jobs_superseded_total",
			Help: "Async job results discarded because the session was reset underneath them",
		},
	)
)

// Sweeper metrics
var (
	// SweeperRecoveriesTotal tracks forced recoveries by the state they rescued
	SweeperRecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_sweeper_recoveries_total",
			Help: "Sessions force-recovered to IDLE by the state they exceeded",
		},
		[]string{"state"},
	)

	// SweeperEvictionsTotal tracks IDLE sessions evicted from the store
	SweeperEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booth_sweeper_evictions_total",
			Help: "IDLE sessions evicted from the store after the grace period",
		},
	)

	// SweepDurationSeconds tracks a full sweep pass duration
	SweepDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booth_sweep_duration_seconds",
			Help:    "Duration of one sweeper pass in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)

// Idempotency and delivery metrics
var (
	// IdempotencyReplaysTotal tracks requests answered from the idempotency cache
	IdempotencyReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booth_idempotency_replays_total",
			Help: "Requests answered from the idempotency cache without re-running the operation",
		},
	)

	// IdempotencyConflictsTotal tracks key reuse with a different fingerprint
	IdempotencyConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booth_idempotency_conflicts_total",
			Help: "Idempotency keys reused with a mismatched fingerprint",
		},
	)

	// DeliveryTokensMintedTotal tracks download tokens created
	DeliveryTokensMintedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booth_delivery_tokens_minted_total",
			Help: "Delivery tokens minted",
		},
	)

	// ProcessorFailuresTotal tracks AI backend failures by mode
	ProcessorFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_processor_failures_total",
			Help: "AI processing failures by processor mode",
		},
		[]string{"mode"},
	)
)
