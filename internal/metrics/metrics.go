// Package metrics records operational metrics for telemetry ingestion runs.
//
// Code depends only on the Backend interface; concrete systems live in
// subpackages (prompush for a Prometheus Pushgateway, datadog for DogStatsD).
// The global backend defaults to a no-op, so recording is always safe even
// when no backend is configured.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing
// backend. Call it before any run starts.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// Step names recorded by the pipeline.
const (
	StepParseKey  = "parse_key"
	StepRead      = "read"
	StepValidate  = "validate"
	StepTransform = "transform"
	StepStage     = "stage"
	StepMerge     = "merge"
)

// RecordStep records latency and success/failure of one pipeline step.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter("telemetry_step_total", 1, lbls)
	backend.ObserveHistogram("telemetry_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRow increments a row counter for the given job and kind. Kinds used
// by the pipeline are "read", "skipped", "staged" and "rejected".
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("telemetry_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordPoll counts one status check of a query execution, labelled with the
// state it reported.
func RecordPoll(job, state string) {
	backend.IncCounter("telemetry_query_polls_total", 1, Labels{
		"job":   job,
		"state": state,
	})
}

// RecordValidation counts a validation outcome.
func RecordValidation(job string, valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	backend.IncCounter("telemetry_validations_total", 1, Labels{
		"job":    job,
		"result": result,
	})
}
