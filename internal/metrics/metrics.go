// Package metrics exposes pipeline counters and timings to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_ingest"

// Parse outcomes.
const (
	OutcomeSuccess           = "success"
	OutcomeFailed            = "failed"
	OutcomePasswordRequired  = "password_required"
	OutcomePasswordIncorrect = "password_incorrect"
	OutcomeCancelled         = "cancelled"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	parses       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	lineErrors   *prometheus.CounterVec
	warnings     *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
	ocrRuns      *prometheus.CounterVec
}

// New creates collectors on a fresh registry, including Go runtime metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Pipeline invocations by document format and outcome.",
		}, []string{"format", "outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions extracted, by bank format.",
		}, []string{"bank"}),
		lineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_errors_total",
			Help:      "Statement lines rejected during extraction, by bank format.",
		}, []string{"bank"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Data-quality warnings, by bank format.",
		}, []string{"bank"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		ocrRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_runs_total",
			Help:      "OCR invocations by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.parses, m.transactions, m.lineErrors, m.warnings, m.stageSeconds, m.ocrRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveParse counts one invocation outcome.
func (m *Metrics) ObserveParse(format, outcome string) {
	if m == nil {
		return
	}
	m.parses.WithLabelValues(format, outcome).Inc()
}

// ObserveExtraction records the size of a finished extraction.
func (m *Metrics) ObserveExtraction(bank string, transactions, lineErrors, warnings int) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(bank).Add(float64(transactions))
	m.lineErrors.WithLabelValues(bank).Add(float64(lineErrors))
	m.warnings.WithLabelValues(bank).Add(float64(warnings))
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveOCR counts an OCR run; err == nil is a success.
func (m *Metrics) ObserveOCR(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ocrRuns.WithLabelValues(result).Inc()
}
