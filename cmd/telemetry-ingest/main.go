// Command telemetry-ingest loads telemetry CSV objects into the fact table:
// each key is validated, staged into its own table and merged.
//
//	telemetry-ingest -config configs/telemetry.json -bucket raw 2023/23001A_Q1.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"telemetry/internal/config"
	"telemetry/internal/datasource/file"
	"telemetry/internal/logging"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		cfgPath        string
		bucket         string
		keysFile       string
		metricsBackend string
		logLevel       string
		validate       bool
		keys           stringList
	)

	flag.StringVar(&cfgPath, "config", "configs/telemetry.json", "pipeline config path (.json, .yaml or .yml)")
	flag.StringVar(&bucket, "bucket", "", "source bucket (defaults to source.bucket)")
	flag.Var(&keys, "key", "object key to ingest; repeatable, positional arguments are keys too")
	flag.StringVar(&keysFile, "keys-file", "", "file listing object keys, one per line")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "override metrics.backend (none, prompush, datadog)")
	flag.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default LOG_LEVEL, then info)")
	flag.Parse()

	base := logging.New(logging.Options{Level: logLevel})
	log := logging.Component(base, "telemetry-ingest")

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if metricsBackend != "" {
		p.Metrics.Backend = metricsBackend
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Error().Str("config", cfgPath).Msg("configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Info().Str("config", cfgPath).Msg("configuration is valid")
		os.Exit(0)
	}

	keys = append(keys, flag.Args()...)
	if keysFile != "" {
		listed, err := file.ReadKeys(keysFile)
		if err != nil {
			fatalf("keys file: %v", err)
		}
		keys = append(keys, listed...)
	}
	if len(keys) == 0 {
		fatalf("no keys to ingest; pass -key, -keys-file or positional keys")
	}
	if bucket == "" {
		bucket = p.Source.Bucket
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flush := setupMetrics(p, log)
	start := time.Now()
	code := run(ctx, p, bucket, keys, base)
	flush()
	log.Info().Int("keys", len(keys)).Dur("elapsed", time.Since(start).Truncate(time.Millisecond)).Msg("done")
	os.Exit(code)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
