// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. Ingestion runs are short-lived, so collected metrics are
// pushed on Flush instead of being exposed for scraping.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"telemetry/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // telemetry_step_total
	stepDuration *prometheus.SummaryVec // telemetry_step_duration_seconds
	rowCounter   *prometheus.CounterVec // telemetry_rows_total
	pollCounter  *prometheus.CounterVec // telemetry_query_polls_total
	validations  *prometheus.CounterVec // telemetry_validations_total
}

// NewBackend constructs a Prometheus Pushgateway backend. jobName is the
// Pushgateway grouping job and defaults to "telemetry".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "telemetry"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_step_total",
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "telemetry_step_duration_seconds",
			Help:       "Duration of pipeline steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_rows_total",
			Help: "Row counts per kind (read, skipped, staged, rejected).",
		}, []string{"kind"}),
		pollCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_query_polls_total",
			Help: "Merge query status checks by reported state.",
		}, []string{"state"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_validations_total",
			Help: "Validation outcomes.",
		}, []string{"result"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":       b.stepCounter,
		"step summary":       b.stepDuration,
		"row counter":        b.rowCounter,
		"poll counter":       b.pollCounter,
		"validation counter": b.validations,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "telemetry_step_total":
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case "telemetry_rows_total":
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)
	case "telemetry_query_polls_total":
		b.pollCounter.WithLabelValues(labels["state"]).Add(delta)
	case "telemetry_validations_total":
		b.validations.WithLabelValues(labels["result"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "telemetry_step_duration_seconds" {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
