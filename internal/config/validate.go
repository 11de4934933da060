package config

import (
	"fmt"
	"strings"

	"telemetry/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline. Path is a
// dotted path into the config (e.g. "catalog.kind").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline after defaults
// have been applied. It does not mutate p.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and log lines",
		})
	}
	if strings.TrimSpace(p.FactTable) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "fact_table",
			Message:  "fact_table must not be empty (or set " + EnvFactTable + ")",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateCatalog(p.Catalog)...)
	issues = append(issues, validateQuery(p.Query, p.Catalog)...)
	issues = append(issues, validateRanges(p.Validation)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "":
		return append(issues, Issue{SeverityError, "source.kind", "source.kind must not be empty"})
	case "file":
		if strings.TrimSpace(s.Root) == "" {
			issues = append(issues, Issue{SeverityWarning, "source.root", "file source has no root; buckets resolve relative to the working directory"})
		}
	case "s3":
		if s.Region == "" {
			issues = append(issues, Issue{SeverityWarning, "source.region", "s3 source has no region (or " + EnvRegion + "); the SDK default chain decides"})
		}
	case "http":
		if strings.TrimSpace(s.BaseURL) == "" {
			issues = append(issues, Issue{SeverityError, "source.base_url", "http source requires base_url"})
		}
		if s.MaxRetries < 0 {
			issues = append(issues, Issue{SeverityError, "source.max_retries", "max_retries must not be negative"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q", s.Kind)})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	if p.Kind != "csv" {
		issues = append(issues, Issue{SeverityError, "parser.kind", fmt.Sprintf("unsupported parser kind %q; only csv is available", p.Kind)})
	}
	if c := p.Options.String("comma", ","); len([]rune(c)) != 1 {
		issues = append(issues, Issue{SeverityError, "parser.options.comma", fmt.Sprintf("comma must be a single character, got %q", c)})
	}
	if p.Options.Int("max_skipped", 0) < 0 {
		issues = append(issues, Issue{SeverityError, "parser.options.max_skipped", "max_skipped must not be negative"})
	}
	return issues
}

func validateCatalog(c Catalog) []Issue {
	var issues []Issue
	switch c.Kind {
	case "":
		return append(issues, Issue{SeverityError, "catalog.kind", "catalog.kind must not be empty"})
	case "postgres":
		if strings.TrimSpace(c.DSN) == "" {
			issues = append(issues, Issue{SeverityError, "catalog.dsn", "postgres catalog requires a dsn"})
		}
	case "sqlite", "duckdb":
		if strings.TrimSpace(c.DSN) == "" {
			issues = append(issues, Issue{SeverityWarning, "catalog.dsn", c.Kind + " catalog has no dsn; data lives in memory and is lost on exit"})
		}
	case "athena":
		if !strings.HasPrefix(c.Location, "s3://") {
			issues = append(issues, Issue{SeverityError, "catalog.location", "athena catalog requires an s3:// location (or " + EnvGlueBucket + ")"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "catalog.kind", fmt.Sprintf("unknown catalog kind %q", c.Kind)})
	}
	if strings.TrimSpace(c.Database) == "" {
		issues = append(issues, Issue{SeverityError, "catalog.database", "catalog.database must not be empty (or set " + EnvDatabase + ")"})
	}
	return issues
}

func validateQuery(q Query, c Catalog) []Issue {
	var issues []Issue
	switch q.Kind {
	case "local":
		if c.Kind == "athena" {
			issues = append(issues, Issue{SeverityError, "query.kind", "local query service cannot run against an athena catalog"})
		}
	case "athena":
		if !strings.HasPrefix(q.OutputLocation, "s3://") {
			issues = append(issues, Issue{SeverityError, "query.output_location", "athena queries require an s3:// output_location"})
		}
		if c.Kind != "athena" && q.Template == "" {
			issues = append(issues, Issue{SeverityWarning, "query.template", "athena query service with a non-athena catalog uses the " + c.Kind + " template"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "query.kind", fmt.Sprintf("unknown query kind %q", q.Kind)})
	}
	if q.PollInterval <= 0 {
		issues = append(issues, Issue{SeverityError, "query.poll_interval", "poll_interval must be positive"})
	}
	if q.Timeout < 0 {
		issues = append(issues, Issue{SeverityError, "query.timeout", "timeout must not be negative"})
	} else if q.Timeout > 0 && q.Timeout < q.PollInterval {
		issues = append(issues, Issue{SeverityWarning, "query.timeout", "timeout is shorter than poll_interval; merges get a single status check"})
	}
	return issues
}

func validateRanges(v Validation) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for i, r := range v.Ranges {
		path := fmt.Sprintf("validation.ranges[%d]", i)
		if !schema.IsRanged(r.Column) {
			issues = append(issues, Issue{SeverityError, path + ".column", fmt.Sprintf("%q is not a numeric telemetry column", r.Column)})
		}
		if r.Min > r.Max {
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("min %d is greater than max %d", r.Min, r.Max)})
		}
		if seen[r.Column] {
			issues = append(issues, Issue{SeverityWarning, path + ".column", fmt.Sprintf("duplicate range for %q; the last one wins", r.Column)})
		}
		seen[r.Column] = true
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "none":
	case "prompush":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "prompush backend requires pushgateway_url"})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{SeverityError, "metrics.datadog_addr", "datadog backend requires datadog_addr"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	if r.Parallel < 1 {
		return []Issue{{SeverityError, "runtime.parallel", "parallel must be at least 1"}}
	}
	return nil
}

// RangesOrDefault returns the default value ranges with the configured
// overrides applied.
func (v Validation) RangesOrDefault() []schema.RangedColumn {
	out := schema.Ranges()
	for _, r := range v.Ranges {
		for i := range out {
			if out[i].Name == r.Column {
				out[i].Range = schema.Range{Min: r.Min, Max: r.Max}
			}
		}
	}
	return out
}
