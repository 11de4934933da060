// Package config defines the configuration model for telemetry ingestion.
// A pipeline file is JSON, or YAML when its name ends in .yaml/.yml, and the
// deployment environment variables of the ingestion job override a few of its
// fields (see Load).
//
// Example (trimmed):
//
//	{
//	  "job":     "telemetry",
//	  "source":  { "kind": "s3", "region": "eu-west-1" },
//	  "parser":  { "kind": "csv", "options": { "trim_space": true } },
//	  "catalog": { "kind": "athena", "database": "f1", "location": "s3://lake/iceberg_tbl" },
//	  "query":   { "kind": "athena", "output_location": "s3://lake/athena/", "poll_interval": "10s" },
//	  "fact_table": "fact_telemetry"
//	}
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels metrics and log lines.
	Job string `json:"job" yaml:"job"`

	Source  Source  `json:"source" yaml:"source"`
	Parser  Parser  `json:"parser" yaml:"parser"`
	Catalog Catalog `json:"catalog" yaml:"catalog"`
	Query   Query   `json:"query" yaml:"query"`

	// FactTable receives merged rows.
	FactTable string `json:"fact_table" yaml:"fact_table"`

	Validation Validation    `json:"validation" yaml:"validation"`
	Metrics    Metrics       `json:"metrics" yaml:"metrics"`
	Runtime    RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Source selects where raw CSV objects are read from.
type Source struct {
	// Kind is "file", "s3" or "http".
	Kind string `json:"kind" yaml:"kind"`

	// Bucket is used when a run does not name one. For "http" it defaults
	// to BaseURL.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Root is the base directory for "file"; buckets are subdirectories.
	Root string `json:"root" yaml:"root"`

	// Region and Endpoint configure "s3".
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// BaseURL, Timeout and MaxRetries configure "http".
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	Timeout    Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries"`
}

// Parser configures the CSV decoder. Options keys: comma (string),
// trim_space (bool), header_map (object), max_skipped (int, default 0: the
// first malformed row fails the read), normalize (bool, default true: clean
// cells before validation).
type Parser struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Catalog selects the table catalog staging tables are written to.
type Catalog struct {
	// Kind is "postgres", "sqlite", "duckdb" or "athena".
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`

	// Name is the catalog name substituted into merge statements.
	Name     string `json:"name" yaml:"name"`
	Database string `json:"database" yaml:"database"`

	// Location is where table data lives (s3:// URI or local directory).
	Location  string `json:"location" yaml:"location"`
	Region    string `json:"region" yaml:"region"`
	Workgroup string `json:"workgroup" yaml:"workgroup"`

	// AutoCreateFact creates the fact table at startup when it is missing.
	AutoCreateFact bool `json:"auto_create_fact" yaml:"auto_create_fact"`
}

// Query selects the service that runs merge statements.
type Query struct {
	// Kind is "local" (run against the catalog's database) or "athena".
	Kind           string   `json:"kind" yaml:"kind"`
	OutputLocation string   `json:"output_location" yaml:"output_location"`
	PollInterval   Duration `json:"poll_interval" yaml:"poll_interval"`
	Timeout        Duration `json:"timeout" yaml:"timeout"`

	// Template is a merge template path; empty uses the built-in template for
	// the catalog kind.
	Template string `json:"template" yaml:"template"`
}

// Validation overrides the value ranges checked by the validator.
type Validation struct {
	Ranges []RangeRule `json:"ranges" yaml:"ranges"`
}

// RangeRule bounds one column, inclusive.
type RangeRule struct {
	Column string `json:"column" yaml:"column"`
	Min    int64  `json:"min" yaml:"min"`
	Max    int64  `json:"max" yaml:"max"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "prompush" or "datadog".
	Backend        string   `json:"backend" yaml:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr" yaml:"datadog_addr"`
	Namespace      string   `json:"namespace" yaml:"namespace"`
	Tags           []string `json:"tags" yaml:"tags"`
}

// RuntimeConfig controls concurrency.
type RuntimeConfig struct {
	// Parallel is the number of files ingested at once.
	Parallel int `json:"parallel" yaml:"parallel"`
}

// Duration is a time.Duration that decodes from Go duration strings ("10s")
// or from a number of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case nil:
		*d = 0
	case string:
		if x == "" {
			*d = 0
			return nil
		}
		p, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", x, err)
		}
		*d = Duration(p)
	case float64:
		*d = Duration(x * float64(time.Second))
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	default:
		return fmt.Errorf("config: invalid duration %v", v)
	}
	return nil
}

// Options is a free-form map for implementation-specific settings with
// lightly coercing typed getters. Missing keys or unexpected types return
// the default.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers arrive as float64
// and YAML numbers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns the string-valued entries of an object value. Returns an
// empty map when the key is missing or not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
