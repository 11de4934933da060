package main

import (
	"context"
	"fmt"
	"sync/atomic"

	awsathena "github.com/aws/aws-sdk-go/service/athena"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telemetry/internal/catalog"
	"telemetry/internal/config"
	s3ds "telemetry/internal/datasource/s3"
	"telemetry/internal/datasource/sources"
	"telemetry/internal/logging"
	"telemetry/internal/merge"
	"telemetry/internal/metrics"
	"telemetry/internal/metrics/datadog"
	"telemetry/internal/metrics/prompush"
	csvparser "telemetry/internal/parser/csv"
	"telemetry/internal/pipeline"
	"telemetry/internal/query"
	qathena "telemetry/internal/query/athena"
	"telemetry/internal/query/local"
	"telemetry/internal/stage"
	"telemetry/internal/transformer"
	"telemetry/internal/transformer/builtin"

	// config names the backend; every kind has to be linked in.
	_ "telemetry/internal/catalog/all"
)

// Seams swapped in tests.
var (
	openCatalogFn      = catalog.Open
	newAthenaServiceFn = func(region, catalogName, workgroup string) (query.Service, error) {
		sess, err := s3ds.NewSession(s3ds.Options{Region: region})
		if err != nil {
			return nil, err
		}
		return qathena.New(awsathena.New(sess), catalogName, workgroup), nil
	}
)

// run builds the pipeline from p and ingests keys. It returns the process
// exit code: 0 when every key was merged, 1 otherwise.
func run(ctx context.Context, p config.Pipeline, bucket string, keys []string, base zerolog.Logger) int {
	log := logging.Component(base, "telemetry-ingest")
	r, closeFn, err := build(ctx, p, base)
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	defer closeFn()

	if p.Catalog.AutoCreateFact {
		if err := r.EnsureFactTable(ctx); err != nil {
			log.Error().Err(err).Str("fact_table", p.FactTable).Msg("creating fact table")
			return 1
		}
	}

	if failed := ingest(ctx, r, bucket, keys, p.Runtime.Parallel, log); failed > 0 {
		log.Error().Int("failed", failed).Int("keys", len(keys)).Msg("ingestion finished with failures")
		return 1
	}
	return 0
}

// build wires a Runner from the pipeline config. The returned func releases
// the query service and the catalog.
func build(ctx context.Context, p config.Pipeline, base zerolog.Logger) (*pipeline.Runner, func(), error) {
	src, err := sources.New(p.Source)
	if err != nil {
		return nil, nil, err
	}
	dec, err := newDecoder(p.Parser)
	if err != nil {
		return nil, nil, err
	}

	cat, err := openCatalogFn(ctx, catalog.Config{
		Kind:           p.Catalog.Kind,
		DSN:            p.Catalog.DSN,
		Name:           p.Catalog.Name,
		Database:       p.Catalog.Database,
		Location:       p.Catalog.Location,
		Region:         p.Catalog.Region,
		Workgroup:      p.Catalog.Workgroup,
		OutputLocation: p.Query.OutputLocation,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}

	svc, closeSvc, err := newQueryService(p, cat, base)
	if err != nil {
		cat.Close()
		return nil, nil, err
	}
	deleter, ok := cat.(catalog.Deleter)
	if !ok {
		closeSvc()
		cat.Close()
		return nil, nil, fmt.Errorf("catalog %q cannot delete staging tables", p.Catalog.Kind)
	}

	r := &pipeline.Runner{
		Source:   src,
		Decoder:  dec,
		Prepare:  prepareChain(p.Parser),
		Validate: builtin.Validate{Ranges: p.Validation.RangesOrDefault()},
		Catalog:  cat,
		Loader:   stage.NewLoader(logging.Component(base, "stage")),
		Merger: &merge.Coordinator{
			Service:      svc,
			Deleter:      deleter,
			PollInterval: p.Query.PollInterval.D(),
			Timeout:      p.Query.Timeout.D(),
			TemplatePath: p.Query.Template,
			Dialect:      p.Catalog.Kind,
			Job:          p.Job,
			Log:          logging.Component(base, "merge"),
		},
		Tables: pipeline.Tables{
			Database:       p.Catalog.Database,
			Location:       p.Catalog.Location,
			OutputLocation: p.Query.OutputLocation,
			FactTable:      p.FactTable,
		},
		Job: p.Job,
		Log: logging.Component(base, "pipeline"),
	}
	closeFn := func() {
		closeSvc()
		if err := cat.Close(); err != nil {
			base.Warn().Err(err).Msg("closing catalog")
		}
	}
	return r, closeFn, nil
}

func newDecoder(p config.Parser) (*csvparser.Parser, error) {
	if p.Kind != "csv" {
		return nil, fmt.Errorf("unsupported parser kind %q", p.Kind)
	}
	return csvparser.NewParser(csvparser.Options{
		Comma:      p.Options.Rune("comma", ','),
		TrimSpace:  p.Options.Bool("trim_space", true),
		HeaderMap:  p.Options.StringMap("header_map"),
		MaxSkipped: p.Options.Int("max_skipped", 0),
	}), nil
}

// prepareChain cleans cells before validation unless parser option
// "normalize" is false.
func prepareChain(p config.Parser) transformer.Chain {
	if !p.Options.Bool("normalize", true) {
		return nil
	}
	return transformer.Chain{builtin.Normalize{}}
}

// newQueryService returns the service merges run on. "local" executes them
// against the catalog's own database.
func newQueryService(p config.Pipeline, cat catalog.Catalog, base zerolog.Logger) (query.Service, func(), error) {
	switch p.Query.Kind {
	case "local":
		exec, ok := cat.(catalog.Execer)
		if !ok {
			return nil, nil, fmt.Errorf("catalog %q cannot run local queries", p.Catalog.Kind)
		}
		svc := local.New(exec, logging.Component(base, "query"))
		return svc, func() { svc.Close() }, nil
	case "athena":
		svc, err := newAthenaServiceFn(p.Catalog.Region, cat.Name(), p.Catalog.Workgroup)
		if err != nil {
			return nil, nil, fmt.Errorf("athena query service: %w", err)
		}
		return svc, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported query kind %q", p.Query.Kind)
}

// ingest runs every key with at most parallel runs in flight. A failing key
// does not stop the others; the number of failed or rejected keys is
// returned.
func ingest(ctx context.Context, r *pipeline.Runner, bucket string, keys []string, parallel int, log zerolog.Logger) int {
	if parallel < 1 {
		parallel = 1
	}
	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for _, key := range keys {
		g.Go(func() error {
			sum, err := r.Run(ctx, bucket, key)
			switch {
			case err != nil:
				failed.Add(1)
				log.Error().Err(err).Str("key", key).Msg("ingestion failed")
			case !sum.Valid:
				failed.Add(1)
				log.Warn().Str("key", key).Int("errors", len(sum.Errors)).Msg("file rejected by validation")
			default:
				log.Info().
					Str("key", key).
					Str("staging_table", sum.StagingTable).
					Int64("rows", sum.RowsStaged).
					Str("fingerprint", sum.Fingerprint).
					Msg("ingested")
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

// setupMetrics installs the configured backend and returns a flush func.
// An unusable backend leaves metrics disabled rather than failing the run.
func setupMetrics(p config.Pipeline, log zerolog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch p.Metrics.Backend {
	case "", "none":
		log.Debug().Msg("metrics disabled")
		return func() {}
	case "prompush":
		b, err = prompush.NewBackend(p.Job, p.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.DatadogAddr,
			Namespace:  p.Metrics.Namespace,
			GlobalTags: p.Metrics.Tags,
		})
	default:
		log.Warn().Str("backend", p.Metrics.Backend).Msg("unknown metrics backend; metrics disabled")
		return func() {}
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", p.Metrics.Backend).Msg("metrics backend unavailable; metrics disabled")
		return func() {}
	}
	metrics.SetBackend(b)
	log.Info().Str("backend", p.Metrics.Backend).Str("job", p.Job).Msg("metrics enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush")
		}
	}
}
