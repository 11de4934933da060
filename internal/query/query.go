// Package query models an asynchronous SQL execution service: submit a
// statement, get an execution id, poll until a terminal state.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of an execution.
type State string

const (
	Queued    State = "QUEUED"
	Running   State = "RUNNING"
	Succeeded State = "SUCCEEDED"
	Failed    State = "FAILED"
	Cancelled State = "CANCELLED"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Execution is a status snapshot.
type Execution struct {
	ID     string
	State  State
	Reason string
}

// Service submits statements and reports their status.
type Service interface {
	StartQueryExecution(ctx context.Context, sql, database, outputLocation string) (string, error)
	GetQueryExecution(ctx context.Context, id string) (Execution, error)
}

// Stopper is implemented by services that can cancel a running execution.
type Stopper interface {
	StopQueryExecution(ctx context.Context, id string) error
}

// ErrTimeout is returned by Poller.Wait when the execution is still not
// terminal after Timeout.
var ErrTimeout = errors.New("query: timed out waiting for execution")

// DefaultPollInterval is the wait between status checks.
const DefaultPollInterval = 10 * time.Second

// Poller waits for an execution to reach a terminal state.
type Poller struct {
	Interval time.Duration
	// Timeout bounds the whole wait; zero means no bound.
	Timeout time.Duration
	// OnPoll, when set, observes every status snapshot.
	OnPoll func(Execution)
}

// newTimer is swapped in tests.
var newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Wait polls svc until id is terminal. The first status check happens
// immediately; each later one after Interval. Context cancellation and the
// timeout both end the wait with an error.
func (p Poller) Wait(ctx context.Context, svc Service, id string) (Execution, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var deadline <-chan time.Time
	if p.Timeout > 0 {
		c, stop := newTimer(p.Timeout)
		defer stop()
		deadline = c
	}

	for {
		exec, err := svc.GetQueryExecution(ctx, id)
		if err != nil {
			return Execution{}, fmt.Errorf("query: get execution %s: %w", id, err)
		}
		if p.OnPoll != nil {
			p.OnPoll(exec)
		}
		if exec.State.Terminal() {
			return exec, nil
		}

		tick, stop := newTimer(interval)
		select {
		case <-ctx.Done():
			stop()
			return exec, ctx.Err()
		case <-deadline:
			stop()
			return exec, fmt.Errorf("%w %s after %s (last state %s)", ErrTimeout, id, p.Timeout, exec.State)
		case <-tick:
		}
	}
}
