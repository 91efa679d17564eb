// Package metrics centralizes the Prometheus instrumentation for the tool
// evolution engine, adapted from the teacher's internal/observability
// package (internal/observability/metrics.go) — same promauto-registered
// CounterVec/HistogramVec shape, repointed from channel/session metrics at
// gateway submissions, verifier stage outcomes and sandbox executions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and histogram this repo emits.
type Metrics struct {
	// SubmissionCounter tracks Gateway.Submit outcomes.
	// Labels: category, outcome (registered|rejected)
	SubmissionCounter *prometheus.CounterVec

	// VerifierStageCounter tracks which verification stage a candidate
	// reached and whether it passed that stage.
	// Labels: stage, result (pass|fail)
	VerifierStageCounter *prometheus.CounterVec

	// VerifierDuration measures end-to-end Verify() latency.
	// Labels: category
	VerifierDuration *prometheus.HistogramVec

	// ExecutionCounter tracks sandbox executions by category and outcome.
	// Labels: category, outcome (ok|error|timeout)
	ExecutionCounter *prometheus.CounterVec

	// ExecutionDuration measures sandbox subprocess wall time.
	// Labels: category
	ExecutionDuration *prometheus.HistogramVec

	// RefinerAttempts counts Refiner.Refine loop iterations by final outcome.
	// Labels: status (accepted|exhausted|unfixable)
	RefinerAttempts *prometheus.CounterVec
}

var defaultMetrics *Metrics

// New registers a fresh set of collectors against reg. Passing nil uses the
// default Prometheus registry, matching the teacher's NewMetrics().
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolforge_gateway_submissions_total",
				Help: "Total number of Gateway.Submit calls by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		VerifierStageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolforge_verifier_stage_total",
				Help: "Total number of verification stage results",
			},
			[]string{"stage", "result"},
		),
		VerifierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolforge_verifier_duration_seconds",
				Help:    "Duration of a full Verify() pass in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"category"},
		),
		ExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolforge_sandbox_executions_total",
				Help: "Total number of sandbox executions by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolforge_sandbox_execution_duration_seconds",
				Help:    "Duration of a sandbox subprocess execution in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"category"},
		),
		RefinerAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolforge_refiner_attempts_total",
				Help: "Total number of Refiner.Refine loop terminations by status",
			},
			[]string{"status"},
		),
	}
}

// Default returns a process-wide Metrics instance registered against the
// default Prometheus registry, lazily created on first use. Callers that
// want an isolated registry (tests, multiple CLI invocations in one
// process) should call New directly instead.
func Default() *Metrics {
	if defaultMetrics == nil {
		defaultMetrics = New(nil)
	}
	return defaultMetrics
}

// RecordSubmission increments the submission counter.
func (m *Metrics) RecordSubmission(category, outcome string) {
	m.SubmissionCounter.WithLabelValues(category, outcome).Inc()
}

// RecordStage increments the per-stage verifier counter.
func (m *Metrics) RecordStage(stage, result string) {
	m.VerifierStageCounter.WithLabelValues(stage, result).Inc()
}

// ObserveVerify records the duration of a full Verify() pass.
func (m *Metrics) ObserveVerify(category string, d time.Duration) {
	m.VerifierDuration.WithLabelValues(category).Observe(d.Seconds())
}

// RecordExecution increments the sandbox execution counter and observes its
// duration together, mirroring the teacher's RecordToolExecution pairing.
func (m *Metrics) RecordExecution(category, outcome string, d time.Duration) {
	m.ExecutionCounter.WithLabelValues(category, outcome).Inc()
	m.ExecutionDuration.WithLabelValues(category).Observe(d.Seconds())
}

// RecordRefinerAttempt increments the Refiner termination counter.
func (m *Metrics) RecordRefinerAttempt(status string) {
	m.RefinerAttempts.WithLabelValues(status).Inc()
}
