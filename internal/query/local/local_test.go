package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telemetry/internal/catalog"
	"telemetry/internal/catalog/sqlite"
	"telemetry/internal/query"
	"telemetry/internal/schema"
)

// gateExec blocks every Exec until release is closed or ctx ends.
type gateExec struct {
	release chan struct{}
	err     error
	got     chan string
}

func (g *gateExec) Exec(ctx context.Context, sql string) error {
	g.got <- sql
	select {
	case <-g.release:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newGate() *gateExec {
	return &gateExec{release: make(chan struct{}), got: make(chan string, 8)}
}

func waitState(t *testing.T, s *Service, id string, want query.State) query.Execution {
	t.Helper()
	p := query.Poller{Interval: time.Millisecond, Timeout: 5 * time.Second}
	if want.Terminal() {
		e, err := p.Wait(context.Background(), s, id)
		if err != nil || e.State != want {
			t.Fatalf("execution %s: %+v %v; want %s", id, e, err, want)
		}
		return e
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		e, _ := s.GetQueryExecution(context.Background(), id)
		if e.State == want {
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("execution %s never reached %s", id, want)
	return query.Execution{}
}

/*
TestService_Lifecycle verifies QUEUED -> RUNNING -> SUCCEEDED and that a
second submission waits for the first.
*/
func TestService_Lifecycle(t *testing.T) {
	g := newGate()
	s := New(g, zerolog.Nop())
	defer s.Close()

	ctx := context.Background()
	first, err := s.StartQueryExecution(ctx, "SELECT 1", "telemetry", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := <-g.got; got != "SELECT 1" {
		t.Fatalf("exec got %q", got)
	}
	waitState(t, s, first, query.Running)

	second, _ := s.StartQueryExecution(ctx, "SELECT 2", "telemetry", "")
	if e, _ := s.GetQueryExecution(ctx, second); e.State != query.Queued {
		t.Fatalf("second=%+v; want QUEUED", e)
	}

	close(g.release)
	waitState(t, s, first, query.Succeeded)
	waitState(t, s, second, query.Succeeded)
}

func TestService_Failed(t *testing.T) {
	g := newGate()
	g.err = errors.New("no such table: telemetry.fact")
	close(g.release)
	s := New(g, zerolog.Nop())
	defer s.Close()

	id, _ := s.StartQueryExecution(context.Background(), "MERGE", "telemetry", "")
	e := waitState(t, s, id, query.Failed)
	if e.Reason != g.err.Error() {
		t.Fatalf("reason=%q", e.Reason)
	}
}

func TestService_Stop(t *testing.T) {
	g := newGate()
	s := New(g, zerolog.Nop())
	defer s.Close()

	ctx := context.Background()
	id, _ := s.StartQueryExecution(ctx, "SELECT 1", "", "")
	<-g.got
	if err := s.StopQueryExecution(ctx, id); err != nil {
		t.Fatal(err)
	}
	e := waitState(t, s, id, query.Cancelled)
	if e.Reason != "stopped by request" {
		t.Fatalf("reason=%q", e.Reason)
	}
	if err := s.StopQueryExecution(ctx, "nope"); err == nil {
		t.Fatal("want unknown id error")
	}
	if _, err := s.GetQueryExecution(ctx, "nope"); err == nil {
		t.Fatal("want unknown id error")
	}
}

func TestService_CanceledSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(newGate(), zerolog.Nop()).StartQueryExecution(ctx, "x", "", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

// TestService_SQLite executes a real statement through the SQLite catalog.
func TestService_SQLite(t *testing.T) {
	ctx := context.Background()
	cat, err := sqlite.Open(ctx, ":memory:", "")
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	if err := cat.EnsureTable(ctx, catalog.Identifier{Name: "fact"}, schema.Target(), ""); err != nil {
		t.Fatal(err)
	}

	s := New(cat, zerolog.Nop())
	defer s.Close()
	id, _ := s.StartQueryExecution(ctx, `INSERT INTO "fact" ("event_id") VALUES ('23001A')`, "main", "")
	waitState(t, s, id, query.Succeeded)

	var n int
	if err := cat.DB().QueryRowContext(ctx, `SELECT count(*) FROM "fact"`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
