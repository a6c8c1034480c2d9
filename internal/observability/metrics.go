package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompletionAttempts counts backend calls by backend and outcome
	// (ok, transient, fatal).
	CompletionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_completion_attempts_total",
			Help: "Total number of completion attempts",
		},
		[]string{"backend", "outcome"},
	)

	// CompletionLatency tracks a single backend call.
	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailtriage_completion_latency_seconds",
			Help:    "Completion call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Repairs counts repair rounds per task and whether they produced valid JSON.
	Repairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_repairs_total",
			Help: "Total number of JSON repair rounds",
		},
		[]string{"task", "result"},
	)

	// Fallbacks counts deterministic default records per task and reason.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_fallbacks_total",
			Help: "Total number of fallback records",
		},
		[]string{"task", "reason"},
	)

	// SchemaViolations counts parsed records that did not match their schema.
	SchemaViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_schema_violations_total",
			Help: "Total number of structured records failing schema validation",
		},
		[]string{"schema"},
	)

	// CategorySubstitutions counts categories replaced by the default.
	CategorySubstitutions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtriage_category_substitutions_total",
			Help: "Total number of invalid categories mapped to the default",
		},
	)

	// PolicyInterventions counts replies changed by the reply policy.
	PolicyInterventions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_policy_interventions_total",
			Help: "Total number of replies blocked or redacted by policy",
		},
		[]string{"flag"},
	)

	// Records counts processed inputs by category, or "failed".
	Records = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_records_total",
			Help: "Total number of processed inputs",
		},
		[]string{"category"},
	)
)
