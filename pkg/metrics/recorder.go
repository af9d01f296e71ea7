// Package metrics provides Prometheus-based recording for pipeline
// activity, plus a query service for aggregating run metrics from a
// Prometheus server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the recording surface the pipeline uses. A nil-safe no-op
// implementation is available for runs with metrics disabled.
type Recorder interface {
	RecordTask(status string, attempts int, duration time.Duration)
	RecordGeneration(model, outcome string, duration time.Duration)
	RecordReview(model, verdict string, duration time.Duration)
	RecordConsentDecision(decision string)
	RecordInstall(manager, result string, packages int)
}

// PrometheusRecorder implements Recorder on the default registry.
type PrometheusRecorder struct {
	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	taskAttempts     prometheus.Histogram
	llmDuration      *prometheus.HistogramVec
	llmRequestsTotal *prometheus.CounterVec
	consentTotal     *prometheus.CounterVec
	installsTotal    *prometheus.CounterVec
	installPackages  prometheus.Counter
}

// NewPrometheusRecorder creates a recorder registered with the default
// Prometheus registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		tasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_tasks_total",
				Help: "Total pipeline tasks by terminal status",
			},
			[]string{"status"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_task_duration_seconds",
				Help:    "Wall time per task by terminal status",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"status"},
		),
		taskAttempts: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_task_attempts",
				Help:    "Generation attempts consumed per task",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		llmDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests by model and operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "operation"},
		),
		llmRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total LLM requests by model, operation, and outcome",
			},
			[]string{"model", "operation", "outcome"},
		),
		consentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_decisions_total",
				Help: "Consent prompt outcomes by decision kind",
			},
			[]string{"decision"},
		),
		installsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependency_installs_total",
				Help: "Install attempts by package manager and result",
			},
			[]string{"manager", "result"},
		),
		installPackages: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dependency_packages_installed_total",
				Help: "Total packages passed to install attempts",
			},
		),
	}
}

func (r *PrometheusRecorder) RecordTask(status string, attempts int, duration time.Duration) {
	r.tasksTotal.WithLabelValues(status).Inc()
	r.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
	r.taskAttempts.Observe(float64(attempts))
}

func (r *PrometheusRecorder) RecordGeneration(model, outcome string, duration time.Duration) {
	r.llmRequestsTotal.WithLabelValues(model, "generate", outcome).Inc()
	r.llmDuration.WithLabelValues(model, "generate").Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordReview(model, verdict string, duration time.Duration) {
	r.llmRequestsTotal.WithLabelValues(model, "review", verdict).Inc()
	r.llmDuration.WithLabelValues(model, "review").Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordConsentDecision(decision string) {
	r.consentTotal.WithLabelValues(decision).Inc()
}

func (r *PrometheusRecorder) RecordInstall(manager, result string, packages int) {
	r.installsTotal.WithLabelValues(manager, result).Inc()
	r.installPackages.Add(float64(packages))
}

// NoopRecorder discards everything. Used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordTask(string, int, time.Duration)          {}
func (NoopRecorder) RecordGeneration(string, string, time.Duration) {}
func (NoopRecorder) RecordReview(string, string, time.Duration)     {}
func (NoopRecorder) RecordConsentDecision(string)                   {}
func (NoopRecorder) RecordInstall(string, string, int)              {}
