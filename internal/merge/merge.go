// Package merge upserts a staging table into the fact table by submitting a
// templated MERGE statement to a query service, waiting for it, and deleting
// the staging table once the merge has succeeded.
package merge

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telemetry/internal/catalog"
	"telemetry/internal/metrics"
	"telemetry/internal/query"
)

//go:embed sql/*.sql
var templates embed.FS

// Dialects with an embedded default template. They match catalog kinds.
const (
	DialectAthena   = "athena"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
	DialectDuckDB   = "duckdb"
)

// Request names the tables of one merge.
type Request struct {
	Catalog        string
	Database       string
	OutputLocation string
	SrcTable       string
	DstTable       string
}

// FailedError reports a merge execution that ended FAILED or CANCELLED.
type FailedError struct {
	ExecutionID string
	State       query.State
	Reason      string
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("merge query %s ended %s", e.ExecutionID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Coordinator runs merges. Service and Deleter are required.
type Coordinator struct {
	Service query.Service
	Deleter catalog.Deleter

	// PollInterval defaults to query.DefaultPollInterval.
	PollInterval time.Duration
	// Timeout bounds the wait for a terminal state; zero waits forever.
	Timeout time.Duration

	// TemplatePath overrides the embedded template for Dialect.
	TemplatePath string
	Dialect      string

	// Job labels metrics.
	Job string
	Log zerolog.Logger
}

// Merge submits the merge for req and waits for it. On success the staging
// table is deleted exactly once; a failed delete is logged and not returned.
func (c *Coordinator) Merge(ctx context.Context, req Request) error {
	tmpl, err := LoadTemplate(c.TemplatePath, c.Dialect)
	if err != nil {
		return err
	}
	stmt := Render(tmpl, req)

	lg := c.Log.With().
		Str("src_table", req.SrcTable).
		Str("dst_table", req.DstTable).
		Logger()

	id, err := c.Service.StartQueryExecution(ctx, stmt, req.Database, req.OutputLocation)
	if err != nil {
		return fmt.Errorf("merge: start query: %w", err)
	}
	lg = lg.With().Str("query_execution_id", id).Logger()
	lg.Info().Msg("merge query started")

	interval := c.PollInterval
	if interval <= 0 {
		interval = query.DefaultPollInterval
	}
	poller := query.Poller{
		Interval: interval,
		Timeout:  c.Timeout,
		OnPoll: func(e query.Execution) {
			metrics.RecordPoll(c.Job, string(e.State))
			lg.Debug().Str("state", string(e.State)).Msg("merge query status")
		},
	}
	exec, err := poller.Wait(ctx, c.Service, id)
	if err != nil {
		if errors.Is(err, query.ErrTimeout) || ctx.Err() != nil {
			c.stop(id, lg)
		}
		return fmt.Errorf("merge: wait for %s: %w", id, err)
	}

	if exec.State != query.Succeeded {
		lg.Error().Str("state", string(exec.State)).Str("reason", exec.Reason).Msg("merge into fact table failed")
		return &FailedError{ExecutionID: id, State: exec.State, Reason: exec.Reason}
	}
	lg.Info().Msg("merged into fact table")

	if err := c.Deleter.DeleteTable(ctx, req.Catalog, req.Database, req.SrcTable); err != nil {
		lg.Warn().Bool("cleanup_warning", true).Err(err).Msg("failed to delete staging table")
		return nil
	}
	lg.Info().Msg("deleted staging table")
	return nil
}

// stop asks the service to cancel an execution that is being abandoned.
func (c *Coordinator) stop(id string, lg zerolog.Logger) {
	s, ok := c.Service.(query.Stopper)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.StopQueryExecution(ctx, id); err != nil {
		lg.Warn().Err(err).Msg("failed to stop abandoned merge query")
	}
}

// LoadTemplate reads the template at path, or the embedded default for
// dialect when path is empty.
func LoadTemplate(path, dialect string) (string, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("merge: read template: %w", err)
		}
		return string(b), nil
	}
	b, err := templates.ReadFile("sql/" + dialect + ".sql")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("merge: no template for dialect %q", dialect)
		}
		return "", fmt.Errorf("merge: embedded template: %w", err)
	}
	return string(b), nil
}

// Render substitutes the {catalog}, {database}, {src_table} and {dst_table}
// placeholders verbatim.
func Render(tmpl string, req Request) string {
	return strings.NewReplacer(
		"{catalog}", req.Catalog,
		"{database}", req.Database,
		"{src_table}", req.SrcTable,
		"{dst_table}", req.DstTable,
	).Replace(tmpl)
}
