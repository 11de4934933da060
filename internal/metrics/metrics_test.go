package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []call
	histograms []call
	flushCount int
}

type call struct {
	Name   string
	Value  float64
	Labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// swap installs a fake backend for the duration of the test.
func swap(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := swap(t)

	RecordStep("ingest", StepStage, nil, 2*time.Second)
	RecordStep("ingest", StepMerge, errors.New("boom"), 1500*time.Millisecond)

	want := []call{
		{"telemetry_step_total", 1, Labels{"job": "ingest", "step": "stage", "status": "success"}},
		{"telemetry_step_total", 1, Labels{"job": "ingest", "step": "merge", "status": "failure"}},
	}
	if diff := cmp.Diff(want, fb.counters); diff != "" {
		t.Fatalf("counters (-want +got):\n%s", diff)
	}
	if len(fb.histograms) != 2 {
		t.Fatalf("expected 2 histogram calls, got %d", len(fb.histograms))
	}
	if h := fb.histograms[0]; h.Name != "telemetry_step_duration_seconds" || h.Value < 1.999 || h.Value > 2.001 {
		t.Fatalf("hist[0] = %#v; want ~2s", h)
	}
	if h := fb.histograms[1]; h.Value < 1.499 || h.Value > 1.501 {
		t.Fatalf("hist[1].value = %v; want ~1.5", h.Value)
	}
}

func TestRecordRowPollValidation(t *testing.T) {
	fb := swap(t)

	RecordRow("ingest", "read", 3)
	RecordRow("ingest", "skipped", 0) // ignored
	RecordPoll("ingest", "RUNNING")
	RecordValidation("ingest", false)

	want := []call{
		{"telemetry_rows_total", 3, Labels{"job": "ingest", "kind": "read"}},
		{"telemetry_query_polls_total", 1, Labels{"job": "ingest", "state": "RUNNING"}},
		{"telemetry_validations_total", 1, Labels{"job": "ingest", "result": "invalid"}},
	}
	if diff := cmp.Diff(want, fb.counters); diff != "" {
		t.Fatalf("counters (-want +got):\n%s", diff)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
