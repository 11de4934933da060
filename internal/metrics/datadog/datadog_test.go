package datadog

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"telemetry/internal/metrics"
)

type sent struct {
	Kind  string
	Name  string
	Value float64
	Tags  []string
}

type fakeClient struct {
	sent   []sent
	closed int
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.sent = append(f.sent, sent{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.sent = append(f.sent, sent{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error { f.closed++; return nil }

func TestNewBackend_RequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("expected error for empty Addr")
	}
}

func TestBackend_SendsTaggedMetrics(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter("telemetry_step_total", 1, metrics.Labels{"step": "merge", "job": "ingest", "status": "success"})
	b.ObserveHistogram("telemetry_step_duration_seconds", 0.25, metrics.Labels{"step": "merge"})
	b.IncCounter("telemetry_rows_total", 7, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []sent{
		{"count", "telemetry_step_total", 1, []string{"job:ingest", "status:success", "step:merge"}},
		{"histogram", "telemetry_step_duration_seconds", 0.25, []string{"step:merge"}},
		{"count", "telemetry_rows_total", 7, nil},
	}
	if diff := cmp.Diff(want, fc.sent); diff != "" {
		t.Fatalf("sent (-want +got):\n%s", diff)
	}
	if fc.closed != 1 {
		t.Fatalf("closed = %d", fc.closed)
	}
}

func TestBackend_NilClient(t *testing.T) {
	var b Backend
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
