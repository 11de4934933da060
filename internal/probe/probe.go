// Package probe samples the head of a telemetry object and reports how its
// header lines up with the telemetry schema: the detected delimiter, the
// header renames needed, missing and extra columns, and the validation
// result for the sampled rows. Nothing is written anywhere.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"telemetry/internal/config"
	"telemetry/internal/datasource"
	"telemetry/internal/filemeta"
	csvparser "telemetry/internal/parser/csv"
	"telemetry/internal/schema"
	"telemetry/internal/transformer/builtin"
)

// DefaultMaxBytes is the sample size used when Options.MaxBytes is zero.
const DefaultMaxBytes = 64 << 10

// Options control sampling.
type Options struct {
	// MaxBytes to sample from the start of the object.
	MaxBytes int
	// Delimiter (single rune). If zero, it is detected from the header line.
	Delimiter rune
	// Ranges overrides schema.Ranges() for the sample validation.
	Ranges []schema.RangedColumn
	// SavePath, when set, receives the sampled bytes.
	SavePath string
}

// Report is the outcome of a probe.
type Report struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`

	// Metadata is nil when the key does not name a telemetry file;
	// KeyError then says why.
	Metadata *filemeta.Metadata `json:"metadata,omitempty"`
	KeyError string             `json:"key_error,omitempty"`

	Delimiter string   `json:"delimiter"`
	Headers   []string `json:"headers"`
	// HeaderMap renames source headers that match a schema column only
	// after case and punctuation folding.
	HeaderMap map[string]string `json:"header_map,omitempty"`
	Missing   []string          `json:"missing,omitempty"`
	Extra     []string          `json:"extra,omitempty"`

	SampleBytes int  `json:"sample_bytes"`
	SampleRows  int  `json:"sample_rows"`
	Skipped     int  `json:"skipped_rows"`
	Truncated   bool `json:"truncated"`

	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// peekFn reads at most n bytes of bucket/key and reports whether more
// remained. Tests replace it to avoid real I/O.
var peekFn = func(ctx context.Context, src datasource.Reader, bucket, key string, n int) ([]byte, bool, error) {
	rc, err := src.Open(ctx, bucket, key)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, int64(n)+1)); err != nil {
		return nil, false, &datasource.SourceReadError{Bucket: bucket, Key: key, Err: err}
	}
	b := buf.Bytes()
	if len(b) > n {
		return b[:n], true, nil
	}
	return b, false, nil
}

// Probe samples bucket/key through src and builds a Report. Only a failure
// to fetch or parse the sample is an error; schema mismatches are reported.
func Probe(ctx context.Context, src datasource.Reader, bucket, key string, opt Options) (Report, error) {
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = DefaultMaxBytes
	}
	rep := Report{Bucket: bucket, Key: key}

	if meta, err := filemeta.Parse(key); err != nil {
		rep.KeyError = err.Error()
	} else {
		rep.Metadata = &meta
	}

	sample, truncated, err := peekFn(ctx, src, bucket, key, opt.MaxBytes)
	if err != nil {
		return rep, fmt.Errorf("probe: sample %s/%s: %w", bucket, key, err)
	}
	if opt.SavePath != "" {
		if err := writeSample(opt.SavePath, sample); err != nil {
			return rep, fmt.Errorf("probe: save sample: %w", err)
		}
	}
	// Cut at the last newline to avoid a half-line record at the end.
	if truncated {
		if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i+1]
		}
	}
	rep.SampleBytes = len(sample)
	rep.Truncated = truncated

	delim := opt.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(sample)
	}
	rep.Delimiter = string(delim)

	// First pass reads headers as-is so renames can be suggested. Both passes
	// skip malformed rows so the report can count them.
	raw, _, err := csvparser.NewParser(csvparser.Options{Comma: delim, MaxSkipped: -1}).Decode(bytes.NewReader(sample))
	if err != nil {
		return rep, fmt.Errorf("probe: parse sample: %w", err)
	}
	rep.Headers = raw.Names()
	rep.HeaderMap = SuggestHeaderMap(rep.Headers)
	rep.Missing, rep.Extra = compareColumns(rep.Headers, rep.HeaderMap)

	f, skipped, err := csvparser.NewParser(csvparser.Options{
		Comma:      delim,
		TrimSpace:  true,
		HeaderMap:  rep.HeaderMap,
		MaxSkipped: -1,
	}).Decode(bytes.NewReader(sample))
	if err != nil {
		return rep, fmt.Errorf("probe: parse sample: %w", err)
	}
	rep.SampleRows = f.Len()
	rep.Skipped = skipped

	res := builtin.Validate{Ranges: opt.Ranges}.Apply(f)
	rep.Valid = res.IsValid
	rep.Errors = res.Errors
	return rep, nil
}

// ParserConfig returns a parser section that reads the probed object.
func (r Report) ParserConfig() config.Parser {
	opts := config.Options{
		"comma":      r.Delimiter,
		"trim_space": true,
	}
	if len(r.HeaderMap) > 0 {
		hm := make(map[string]any, len(r.HeaderMap))
		for k, v := range r.HeaderMap {
			hm[k] = v
		}
		opts["header_map"] = hm
	}
	return config.Parser{Kind: "csv", Options: opts}
}

// delimiterCandidates are tried in order; ties go to the earlier one.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// DetectDelimiter picks the candidate that occurs most often in the header
// line, defaulting to ','.
func DetectDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, c := range delimiterCandidates {
		if n := bytes.Count(line, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// DecodeDelimiter converts a user-supplied string into a single rune
// delimiter. "\t" and "tab" mean a tab; an empty string means detect.
func DecodeDelimiter(s string) rune {
	switch strings.ToLower(s) {
	case "":
		return 0
	case `\t`, "tab":
		return '\t'
	}
	return []rune(s)[0]
}

// SuggestHeaderMap maps headers that fold onto a schema column name but do
// not equal it, e.g. "Driver_Number" to "driverNumber". Headers already
// named correctly, and schema columns already present, are left alone.
func SuggestHeaderMap(headers []string) map[string]string {
	byFold := map[string]string{}
	for _, col := range schema.RequiredColumns() {
		byFold[fold(col)] = col
	}
	present := map[string]bool{}
	for _, h := range headers {
		present[h] = true
	}
	out := map[string]string{}
	for _, h := range headers {
		col, ok := byFold[fold(h)]
		if !ok || col == h || present[col] {
			continue
		}
		out[h] = col
		present[col] = true
	}
	return out
}

// fold lowercases and drops everything but letters and digits.
func fold(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// compareColumns lists required columns absent after renaming and headers
// the validator would drop, both sorted.
func compareColumns(headers []string, headerMap map[string]string) (missing, extra []string) {
	have := map[string]bool{}
	for _, h := range headers {
		if m, ok := headerMap[h]; ok {
			h = m
		}
		have[h] = true
	}
	required := map[string]bool{}
	for _, col := range schema.RequiredColumns() {
		required[col] = true
		if !have[col] {
			missing = append(missing, col)
		}
	}
	for h := range have {
		if !required[h] {
			extra = append(extra, h)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}
