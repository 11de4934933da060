// Package local runs merge statements asynchronously against a SQL catalog,
// exposing the same submit/poll contract as a managed query service.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telemetry/internal/catalog"
	"telemetry/internal/query"
)

type execution struct {
	query.Execution
	sql            string
	database       string
	outputLocation string
	stopReason     string
	cancel         context.CancelFunc
}

// Service implements query.Service and query.Stopper. Statements run one at a
// time; later submissions stay QUEUED until earlier ones finish.
type Service struct {
	exec catalog.Execer
	log  zerolog.Logger
	sem  chan struct{}

	mu   sync.Mutex
	runs map[string]*execution
	wg   sync.WaitGroup
}

// New returns a service executing statements with exec.
func New(exec catalog.Execer, log zerolog.Logger) *Service {
	return &Service{
		exec: exec,
		log:  log,
		sem:  make(chan struct{}, 1),
		runs: map[string]*execution{},
	}
}

// StartQueryExecution registers sql and returns its id without waiting. The
// statement runs detached from ctx; use StopQueryExecution to cancel it.
// database and outputLocation are recorded for logging only: the statement
// must qualify its tables.
func (s *Service) StartQueryExecution(ctx context.Context, sql, database, outputLocation string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	e := &execution{
		Execution:      query.Execution{ID: id, State: query.Queued},
		sql:            sql,
		database:       database,
		outputLocation: outputLocation,
		cancel:         cancel,
	}
	s.mu.Lock()
	s.runs[id] = e
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, e)
	s.log.Debug().Str("execution_id", id).Str("database", database).Msg("query submitted")
	return id, nil
}

func (s *Service) run(ctx context.Context, e *execution) {
	defer s.wg.Done()
	defer e.cancel()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.finish(ctx, e, ctx.Err())
		return
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	e.State = query.Running
	s.mu.Unlock()

	s.finish(ctx, e, s.exec.Exec(ctx, e.sql))
}

func (s *Service) finish(ctx context.Context, e *execution, err error) {
	s.mu.Lock()
	switch {
	case err != nil && ctx.Err() != nil:
		e.State = query.Cancelled
		e.Reason = e.stopReason
	case err != nil:
		e.State = query.Failed
		e.Reason = err.Error()
	default:
		e.State = query.Succeeded
	}
	st, reason := e.State, e.Reason
	s.mu.Unlock()

	ev := s.log.Debug()
	if st != query.Succeeded {
		ev = s.log.Warn()
	}
	ev.Str("execution_id", e.ID).Str("state", string(st)).Str("reason", reason).Msg("query finished")
}

func (s *Service) GetQueryExecution(_ context.Context, id string) (query.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.runs[id]
	if !ok {
		return query.Execution{}, fmt.Errorf("local: unknown execution %q", id)
	}
	return e.Execution, nil
}

// StopQueryExecution cancels a queued or running execution. The state turns
// CANCELLED once the statement has stopped; stopping a finished execution is
// a no-op.
func (s *Service) StopQueryExecution(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.runs[id]
	if ok && !e.State.Terminal() {
		e.stopReason = "stopped by request"
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("local: unknown execution %q", id)
	}
	e.cancel()
	return nil
}

// Close cancels every unfinished execution and waits for them to settle.
func (s *Service) Close() error {
	s.mu.Lock()
	for _, e := range s.runs {
		if !e.State.Terminal() {
			e.stopReason = "service closed"
			e.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
