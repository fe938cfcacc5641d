// Package metrics provides Prometheus instrumentation for document activation,
// streaming completions, and token usage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Activation outcomes.
const (
	OutcomeReused  = "reused"
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

// Completion statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// ActivationsTotal counts document activations by outcome.
	ActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_activations_total",
			Help: "Document activations by outcome.",
		},
		[]string{"outcome"}, // "reused", "created", "failed"
	)

	// ActivationLatency tracks how long a new cache took to become usable.
	ActivationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "folio_activation_latency_seconds",
			Help:    "Time from scratch write to cache creation in seconds.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	// ScratchCleanupFailures counts scratch files that could not be removed.
	ScratchCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_scratch_cleanup_failures_total",
			Help: "Scratch files that could not be removed after activation.",
		},
	)

	// CompletionsTotal counts finished completion streams.
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_completions_total",
			Help: "Completion streams by context mode and status.",
		},
		[]string{"mode", "status"},
	)

	// ProviderErrorsTotal counts classified provider failures.
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_provider_errors_total",
			Help: "Provider failures by classified kind.",
		},
		[]string{"kind"},
	)

	// TokenUsageTotal tracks the total number of tokens consumed.
	TokenUsageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_token_usage_total",
			Help: "Total number of tokens consumed.",
		},
		[]string{"model", "direction"}, // direction: "input" or "output"
	)

	// EstimatedCostTotal accumulates the estimated spend.
	EstimatedCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_estimated_cost_total",
			Help: "Estimated provider cost in USD.",
		},
		[]string{"model"},
	)

	// ActiveStreams tracks the number of in-flight completion streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folio_active_streams",
			Help: "Number of in-flight completion streams.",
		},
	)
)

// RecordActivation records an activation outcome.
func RecordActivation(outcome string, seconds float64) {
	ActivationsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCreated {
		ActivationLatency.Observe(seconds)
	}
}

// RecordCompletion records a finished stream and, on success, its usage.
func RecordCompletion(model, mode string, err error, promptTokens, completionTokens uint32, cost float64) {
	if err != nil {
		CompletionsTotal.WithLabelValues(mode, StatusError).Inc()
		return
	}
	CompletionsTotal.WithLabelValues(mode, StatusSuccess).Inc()
	TokenUsageTotal.WithLabelValues(model, "input").Add(float64(promptTokens))
	TokenUsageTotal.WithLabelValues(model, "output").Add(float64(completionTokens))
	EstimatedCostTotal.WithLabelValues(model).Add(cost)
}

// RecordProviderError counts a classified failure.
func RecordProviderError(kind string) {
	ProviderErrorsTotal.WithLabelValues(kind).Inc()
}
