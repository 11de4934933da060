package httpds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"telemetry/internal/datasource"
)

func noWait(context.Context, time.Duration) error { return nil }

// TestOpen_RetriesThenSucceeds verifies that a 503 is retried and the body of
// the eventual 200 is returned.
func TestOpen_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/telemetry/raw/23001A_Q1.csv" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "timeUtc\n")
	}))
	defer srv.Close()

	r := NewReader(Config{MaxRetries: 3})
	r.wait = noWait
	rc, err := r.Open(context.Background(), srv.URL+"/telemetry", "raw/23001A_Q1.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "timeUtc\n" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("body=%q calls=%d", b, calls)
	}
}

func TestOpen_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   int
		notFound bool
	}{
		{name: "404", status: http.StatusNotFound, notFound: true},
		{name: "410", status: http.StatusGone, notFound: true},
		{name: "403", status: http.StatusForbidden},
		{name: "500_exhausted", status: http.StatusInternalServerError},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(c.status)
			}))
			defer srv.Close()

			r := NewReader(Config{MaxRetries: 1})
			r.wait = noWait
			_, err := r.Open(context.Background(), srv.URL, "k.csv")
			if c.notFound {
				if !errors.Is(err, datasource.ErrSourceNotFound) {
					t.Fatalf("err=%v; want ErrSourceNotFound", err)
				}
				return
			}
			var rerr *datasource.SourceReadError
			if !errors.As(err, &rerr) {
				t.Fatalf("err=%T %v; want *SourceReadError", err, err)
			}
		})
	}
}

func TestOpen_BadBucket(t *testing.T) {
	t.Parallel()
	_, err := NewReader(Config{}).Open(context.Background(), "ftp://host", "k.csv")
	var rerr *datasource.SourceReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("err=%v", err)
	}
}

func TestOpen_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(Config{MaxRetries: 5})
	r.wait = func(context.Context, time.Duration) error { cancel(); return context.Canceled }
	_, err := r.Open(ctx, srv.URL, "k.csv")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()
	if got := backoffDuration(100*time.Millisecond, 0, time.Second); got != 100*time.Millisecond {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := backoffDuration(100*time.Millisecond, 2, time.Second); got != 400*time.Millisecond {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := backoffDuration(100*time.Millisecond, 10, time.Second); got != time.Second {
		t.Fatalf("clamp: %v", got)
	}
}
