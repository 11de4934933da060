// Command telemetry-probe samples the head of a telemetry object and prints a
// JSON report: detected delimiter, suggested header renames, missing and
// extra columns, and the validation result for the sampled rows. With
// -emit-parser it prints a parser config section instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"telemetry/internal/config"
	"telemetry/internal/datasource/sources"
	"telemetry/internal/probe"
)

func main() {
	var (
		flagConfig = flag.String(
			"config",
			"",
			"pipeline config; its source section says where objects live",
		)
		flagKind = flag.String(
			"source",
			"file",
			"source kind when no -config is given: file|s3|http",
		)
		flagRoot = flag.String(
			"root",
			"",
			"root directory for the file source",
		)
		flagBucket = flag.String(
			"bucket",
			"",
			"bucket to read from (defaults to source.bucket)",
		)
		flagKey = flag.String(
			"key",
			"",
			"object key to probe",
		)
		flagBytes = flag.Int(
			"bytes",
			probe.DefaultMaxBytes,
			"number of bytes to sample from the start of the object",
		)
		flagDelimiter = flag.String(
			"delimiter",
			"",
			`field delimiter; empty detects it, "\t" or "tab" for tabs`,
		)
		flagSave = flag.String(
			"save",
			"",
			"write the sampled bytes to this path",
		)
		flagEmitParser = flag.Bool(
			"emit-parser",
			false,
			"print a parser config section instead of the report",
		)
		flagPretty = flag.Bool(
			"pretty",
			true,
			"pretty-print JSON output",
		)
	)
	flag.Parse()

	if *flagKey == "" {
		fmt.Fprintln(os.Stderr, "missing -key")
		flag.Usage()
		os.Exit(2)
	}

	var p config.Pipeline
	if *flagConfig != "" {
		var err error
		if p, err = config.Load(*flagConfig); err != nil {
			fatalf("%v", err)
		}
	} else {
		p.Source = config.Source{Kind: *flagKind, Root: *flagRoot}
		config.ApplyEnv(&p)
		config.ApplyDefaults(&p)
	}
	bucket := *flagBucket
	if bucket == "" {
		bucket = p.Source.Bucket
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opt := probe.Options{
		MaxBytes:  *flagBytes,
		Delimiter: probe.DecodeDelimiter(*flagDelimiter),
		Ranges:    p.Validation.RangesOrDefault(),
		SavePath:  *flagSave,
	}
	code, err := run(ctx, os.Stdout, p.Source, bucket, *flagKey, opt, *flagEmitParser, *flagPretty)
	if err != nil {
		fatalf("probe: %v", err)
	}
	os.Exit(code)
}

// run probes one object and writes the report. The exit code is 0 for a
// sample that validates and 3 for one that does not.
func run(ctx context.Context, w io.Writer, src config.Source, bucket, key string, opt probe.Options, emitParser, pretty bool) (int, error) {
	reader, err := sources.New(src)
	if err != nil {
		return 1, err
	}
	rep, err := probe.Probe(ctx, reader, bucket, key, opt)
	if err != nil {
		return 1, err
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	var out any = rep
	if emitParser {
		out = map[string]config.Parser{"parser": rep.ParserConfig()}
	}
	if err := enc.Encode(out); err != nil {
		return 1, fmt.Errorf("encode report: %w", err)
	}
	if !rep.Valid {
		return 3, nil
	}
	return 0, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
