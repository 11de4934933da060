// Package pipeline runs one telemetry file through key parsing, reading,
// validation, transformation, staging and the merge into the fact table.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"telemetry/internal/catalog"
	"telemetry/internal/datasource"
	"telemetry/internal/filemeta"
	"telemetry/internal/frame"
	"telemetry/internal/merge"
	"telemetry/internal/metrics"
	"telemetry/internal/parser"
	"telemetry/internal/schema"
	"telemetry/internal/stage"
	"telemetry/internal/transformer"
	"telemetry/internal/transformer/builtin"
)

// Merger merges a staging table into the fact table.
type Merger interface {
	Merge(ctx context.Context, req merge.Request) error
}

// Tables locates the staging and fact tables.
type Tables struct {
	Database string
	// Location is where staging table data is written.
	Location string
	// OutputLocation is passed to the query service with the merge.
	OutputLocation string
	FactTable      string
}

// Runner wires the pipeline stages. Source, Decoder, Catalog and Merger are
// required. A Runner is safe for concurrent Run calls; runs that target the
// same staging table are serialized.
type Runner struct {
	Source   datasource.Reader
	Decoder  parser.Decoder
	// Prepare runs on the decoded frame before validation.
	Prepare  transformer.Chain
	Validate builtin.Validate
	Catalog  catalog.Catalog
	Loader   *stage.Loader
	Merger   Merger
	Tables   Tables

	// Job labels metrics.
	Job string
	Log zerolog.Logger

	locks      keyedMutex
	loaderOnce sync.Once
}

// Summary reports the outcome of a run.
type Summary struct {
	Key string
	// Valid is false when validation rejected the file; Errors then lists
	// every finding and nothing was written.
	Valid  bool
	Errors []string

	StagingTable string
	RowsRead     int
	RowsSkipped  int
	RowsStaged   int64
	Bytes        int64
	// Fingerprint is the xxh3 hash of the source bytes, hex encoded.
	Fingerprint string
	Durations   map[string]time.Duration
}

// ValidationError carries the validation findings of a rejected file.
type ValidationError struct {
	Key    string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %d error(s)", e.Key, len(e.Errors))
}

// Err returns a *ValidationError for a rejected file, or nil.
func (s Summary) Err() error {
	if s.Valid {
		return nil
	}
	return &ValidationError{Key: s.Key, Errors: s.Errors}
}

// Run ingests bucket/key. A file that fails validation is not an error: the
// returned Summary has Valid false. Any other failure aborts the run and is
// returned wrapped with the step it happened in.
func (r *Runner) Run(ctx context.Context, bucket, key string) (Summary, error) {
	sum := Summary{Key: key, Durations: map[string]time.Duration{}}
	lg := r.Log.With().Str("bucket", bucket).Str("key", key).Logger()
	lg.Info().Msg("starting ingestion")

	var meta filemeta.Metadata
	err := r.step(&sum, metrics.StepParseKey, func() error {
		var err error
		meta, err = filemeta.Parse(key)
		return err
	})
	if err != nil {
		return sum, err
	}
	sum.StagingTable = meta.StagingTable()

	unlock := r.locks.lock(sum.StagingTable)
	defer unlock()

	var f *frame.Frame
	err = r.step(&sum, metrics.StepRead, func() error {
		var err error
		f, err = r.read(ctx, bucket, key, &sum)
		return err
	})
	if err != nil {
		return sum, err
	}
	metrics.RecordRow(r.Job, "read", int64(sum.RowsRead))
	metrics.RecordRow(r.Job, "skipped", int64(sum.RowsSkipped))
	if sum.RowsSkipped > 0 {
		lg.Warn().Int("skipped", sum.RowsSkipped).Msg("malformed rows skipped")
	}

	var res builtin.Result
	_ = r.step(&sum, metrics.StepValidate, func() error {
		r.Prepare.Apply(f)
		res = r.Validate.Apply(f)
		return nil
	})
	metrics.RecordValidation(r.Job, res.IsValid)
	if !res.IsValid {
		sum.Errors = res.Errors
		metrics.RecordRow(r.Job, "rejected", int64(f.Len()))
		lg.Error().Int("errors", len(res.Errors)).Msg("data validation failed")
		for _, e := range res.Errors {
			lg.Error().Msg(e)
		}
		return sum, nil
	}
	sum.Valid = true

	err = r.step(&sum, metrics.StepTransform, func() error {
		return transformer.Transform(f, meta.Map())
	})
	if err != nil {
		return sum, err
	}

	err = r.step(&sum, metrics.StepStage, func() error {
		loaded, err := r.loader().LoadResult(ctx, f, r.Catalog, r.Tables.Database, r.Tables.Location)
		sum.RowsStaged = loaded.Rows
		if loaded.Table.Name != "" {
			sum.StagingTable = loaded.Table.Name
		}
		return err
	})
	if err != nil {
		return sum, err
	}
	metrics.RecordRow(r.Job, "staged", sum.RowsStaged)
	lg.Info().Str("table", sum.StagingTable).Int64("rows", sum.RowsStaged).Msg("data loaded in staging table")

	err = r.step(&sum, metrics.StepMerge, func() error {
		return r.Merger.Merge(ctx, merge.Request{
			Catalog:        r.Catalog.Name(),
			Database:       r.Tables.Database,
			OutputLocation: r.Tables.OutputLocation,
			SrcTable:       sum.StagingTable,
			DstTable:       r.Tables.FactTable,
		})
	})
	if err != nil {
		return sum, err
	}
	lg.Info().
		Str("fact_table", r.Tables.FactTable).
		Str("fingerprint", sum.Fingerprint).
		Int64("bytes", sum.Bytes).
		Msg("data merged into fact table")
	return sum, nil
}

// step times fn, records it and wraps its error with the step name.
func (r *Runner) step(sum *Summary, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	sum.Durations[name] = d
	metrics.RecordStep(r.Job, name, err, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// read opens and decodes the source, hashing and counting the bytes as they
// stream through the decoder.
func (r *Runner) read(ctx context.Context, bucket, key string, sum *Summary) (*frame.Frame, error) {
	rc, err := r.Source.Open(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	h := xxh3.New()
	cr := &countingReader{r: io.TeeReader(rc, h)}
	f, skipped, err := r.Decoder.Decode(cr)
	if err != nil {
		return nil, &datasource.SourceReadError{Bucket: bucket, Key: key, Err: err}
	}
	sum.Bytes = cr.n
	sum.Fingerprint = fmt.Sprintf("%016x", h.Sum64())
	sum.RowsRead = f.Len()
	sum.RowsSkipped = skipped
	return f, nil
}

func (r *Runner) loader() *stage.Loader {
	r.loaderOnce.Do(func() {
		if r.Loader == nil {
			r.Loader = stage.NewLoader(r.Log)
		}
	})
	return r.Loader
}

// EnsureFactTable creates the fact table when the catalog supports it and
// the table is missing.
func (r *Runner) EnsureFactTable(ctx context.Context) error {
	e, ok := r.Catalog.(catalog.Ensurer)
	if !ok {
		return fmt.Errorf("catalog %s cannot create tables on demand", r.Catalog.Name())
	}
	id := catalog.Identifier{Database: r.Tables.Database, Name: r.Tables.FactTable}
	if err := e.EnsureTable(ctx, id, schema.Target(), r.Tables.Location); err != nil {
		return &catalog.OperationError{Op: "ensure", Table: id, Err: err}
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// keyedMutex serializes callers that share a key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyedEntry{}
	}
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
