// Package config defines the pipeline configuration model: which sources to
// parse, where the harmonized artifact goes, and the ambient runtime knobs.
//
// Pipelines are loaded from YAML, JSON or TOML through viper (see Load) and
// linted with ValidatePipeline before a run.
//
// Example (YAML):
//
//	job: genome_phoenix
//	sources:
//	  - { kind: vcf, path: data/example.vcf }
//	  - { kind: expression, path: data/expression.tsv }
//	  - { kind: proteomics, path: data/proteomics.csv, options: { comma: "," } }
//	output:
//	  location: genome_phoenix.parquet
package config

import (
	"encoding/json"

	"phoenix/internal/logging"
)

// Source kinds understood by the parser registry.
const (
	KindVCF        = "vcf"
	KindExpression = "expression"
	KindProteomics = "proteomics"
)

// Pipeline is the top-level configuration of one harmonization run.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `mapstructure:"job" json:"job"`

	// Sources are parsed in order; their order is the row order of the
	// harmonized artifact.
	Sources []Source `mapstructure:"sources" json:"sources"`

	Output  Output         `mapstructure:"output" json:"output"`
	Runtime RuntimeConfig  `mapstructure:"runtime" json:"runtime"`
	Metrics MetricsConfig  `mapstructure:"metrics" json:"metrics"`
	Log     logging.Config `mapstructure:"log" json:"log"`
}

// Source is one input file (or URL) and the parser that reads it.
type Source struct {
	// Kind selects the parser: "vcf", "expression" or "proteomics".
	Kind string `mapstructure:"kind" json:"kind"`

	// Path is a local filesystem path or an http(s) URL.
	Path string `mapstructure:"path" json:"path"`

	// Options is a free-form map interpreted by the parser and the data
	// source. Common keys:
	//   skip_malformed (bool), comma (string), header_map (object),
	//   format (string; expression only: "tsv" or "gct"),
	//   manifest (bool; Path lists one input per line),
	//   timeout (duration string) and headers (object) for http(s) paths
	Options Options `mapstructure:"options" json:"options"`
}

// Output describes the harmonized artifact.
type Output struct {
	// Location is a local path or an s3://bucket/key URI. The artifact at
	// Location is overwritten on every run.
	Location string `mapstructure:"location" json:"location"`

	// Compression is the Parquet page codec: snappy, zstd, gzip or none.
	Compression string `mapstructure:"compression" json:"compression"`

	// S3 carries client settings used when Location is an s3:// URI.
	S3 S3Config `mapstructure:"s3" json:"s3"`
}

// S3Config configures the S3-compatible artifact store.
type S3Config struct {
	Region    string `mapstructure:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"` // optional, e.g. MinIO
	PathStyle bool   `mapstructure:"path_style" json:"path_style"`
}

// RuntimeConfig controls parse concurrency.
type RuntimeConfig struct {
	// ParseWorkers bounds how many sources are parsed at once. 1 (the
	// default) parses strictly one after another.
	ParseWorkers int `mapstructure:"parse_workers" json:"parse_workers"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "none" or "pushgateway".
	Backend        string `mapstructure:"backend" json:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url" json:"pushgateway_url"`
}

// Options is a small helper to fetch typed values from arbitrary maps
// without a schema per parser. It performs only minimal type coercion and
// returns the provided default when a key is absent or of an unexpected type.
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

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. The escape `\t` is accepted for a tab delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			if s == `\t` {
				return '\t'
			}
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty
// map when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to a non-nil,
// empty Options map so call sites never nil-check.
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
