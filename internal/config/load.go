package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables of the ingestion job. They take precedence over the
// file.
const (
	EnvDatabase     = "glue_database"
	EnvFactTable    = "fact_tbl"
	EnvGlueBucket   = "destination_glue_bucket"
	EnvRegion       = "aws_region_name"
	EnvGlueCatalog  = "glue_catalog"
	EnvOutputBucket = "athena_output_location"
)

// TableLocationPrefix is appended to destination_glue_bucket to form the
// table location.
const TableLocationPrefix = "iceberg_tbl"

// lookupEnv is swapped in tests.
var lookupEnv = os.LookupEnv

// Load reads a pipeline file, applies environment overrides and defaults.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &p)
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&p)
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	ApplyEnv(&p)
	ApplyDefaults(&p)
	return p, nil
}

// ApplyEnv overlays the deployment environment variables onto p.
func ApplyEnv(p *Pipeline) {
	if v, ok := lookupEnv(EnvDatabase); ok && v != "" {
		p.Catalog.Database = v
	}
	if v, ok := lookupEnv(EnvFactTable); ok && v != "" {
		p.FactTable = v
	}
	if v, ok := lookupEnv(EnvGlueBucket); ok && v != "" {
		p.Catalog.Location = "s3://" + strings.Trim(v, "/") + "/" + TableLocationPrefix
	}
	if v, ok := lookupEnv(EnvRegion); ok && v != "" {
		p.Catalog.Region = v
		p.Source.Region = v
	}
	if v, ok := lookupEnv(EnvGlueCatalog); ok && v != "" {
		p.Catalog.Name = v
	}
	if v, ok := lookupEnv(EnvOutputBucket); ok && v != "" {
		p.Query.OutputLocation = v
	}
}

// DefaultPollInterval matches the merge coordinator's default.
const DefaultPollInterval = 10 * time.Second

// ApplyDefaults fills unset fields.
func ApplyDefaults(p *Pipeline) {
	if p.Job == "" {
		p.Job = "telemetry"
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	if p.Query.Kind == "" {
		if p.Catalog.Kind == "athena" {
			p.Query.Kind = "athena"
		} else {
			p.Query.Kind = "local"
		}
	}
	if p.Query.PollInterval <= 0 {
		p.Query.PollInterval = Duration(DefaultPollInterval)
	}
	// Athena writes DDL and merge results next to the tables unless told
	// otherwise.
	if p.Query.OutputLocation == "" {
		p.Query.OutputLocation = p.Catalog.Location
	}
	if p.Source.Bucket == "" && p.Source.Kind == "http" {
		p.Source.Bucket = p.Source.BaseURL
	}
	if p.Catalog.Region == "" {
		p.Catalog.Region = p.Source.Region
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = "none"
	}
	if p.Runtime.Parallel <= 0 {
		p.Runtime.Parallel = 1
	}
}
