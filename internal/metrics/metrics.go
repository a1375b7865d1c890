package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ViolationsTotal counts suspicious-activity events by strike outcome
	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_violations_total",
			Help: "Total number of violations recorded by the strike policy",
		},
		[]string{"outcome"},
	)

	// SubmissionsTotal counts finished submissions by trigger and result
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_submissions_total",
			Help: "Total number of attempt submissions",
		},
		[]string{"trigger", "result"},
	)

	// SubmitCalls counts gateway submit calls including retries
	SubmitCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_submit_calls_total",
			Help: "Total number of submit calls sent to the gateway, retries included",
		},
	)

	// SubmitDuration measures the time from entering Submitting to a final answer
	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proctor_submit_duration_seconds",
			Help:    "Time spent in the submitting state",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StoreFailures counts attempt store operations that failed
	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_store_failures_total",
			Help: "Total number of failed attempt store operations",
		},
		[]string{"op"},
	)

	// AutosaveCalls counts draft mirrors sent to the server by result
	AutosaveCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_autosave_calls_total",
			Help: "Total number of draft autosaves sent to the gateway",
		},
		[]string{"result"},
	)

	// ActiveAttempts tracks attempts currently accepting answers
	ActiveAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_active_attempts",
			Help: "Number of attempts currently in progress",
		},
	)

	// ─── Server ────────────────────────────────────────────────────────

	// AttemptsStarted counts start-or-resume calls answered by the server
	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_server_attempts_started_total",
			Help: "Total number of attempts started or resumed by the server",
		},
		[]string{"kind"},
	)

	// AttemptsGraded counts submissions graded by the server
	AttemptsGraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_server_attempts_graded_total",
			Help: "Total number of attempts graded by the server",
		},
		[]string{"auto"},
	)

	// DraftsSaved counts autosaved drafts written by the server
	DraftsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_server_drafts_saved_total",
			Help: "Total number of autosaved drafts written to attempts",
		},
	)

	// SubmitRejected counts submit calls the server refused
	SubmitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_server_submit_rejected_total",
			Help: "Total number of submit calls rejected by the server",
		},
		[]string{"reason"},
	)

	// ViolationsPersisted counts violation rows written by the worker
	ViolationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_server_violations_persisted_total",
			Help: "Total number of violation events persisted from the queue",
		},
		[]string{"path"},
	)
)
