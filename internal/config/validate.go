package config

// A lightweight linter for Pipeline values. It performs static checks over a
// decoded Pipeline and returns a list of issues (errors and warnings) that
// callers can surface in a CLI or tests.

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "sources[1].path").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics for the run",
		})
	}
	issues = append(issues, validateSources(p.Sources)...)
	issues = append(issues, validateOutput(p.Output)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

var knownKinds = map[string]struct{}{
	KindVCF:        {},
	KindExpression: {},
	KindProteomics: {},
}

func validateSources(ss []Source) []Issue {
	var issues []Issue

	if len(ss) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sources",
			Message:  "at least one source is required",
		})
		return issues
	}

	for i, s := range ss {
		base := fmt.Sprintf("sources[%d]", i)
		if strings.TrimSpace(s.Kind) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".kind",
				Message:  "source kind must not be empty",
			})
		} else if _, ok := knownKinds[s.Kind]; !ok {
			// Only three formats exist; an unknown kind can never be parsed.
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".kind",
				Message:  fmt.Sprintf("unknown source kind %q; expected vcf, expression or proteomics", s.Kind),
			})
		}
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".path",
				Message:  "source path must not be empty",
			})
		}

		if v := s.Options.Any("skip_malformed"); v != nil {
			if _, ok := v.(bool); !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.skip_malformed",
					Message:  "skip_malformed must be a boolean",
				})
			}
		}
		if v := s.Options.Any("manifest"); v != nil {
			if _, ok := v.(bool); !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.manifest",
					Message:  "manifest must be a boolean",
				})
			}
		}
		if t := s.Options.String("timeout", ""); t != "" {
			if d, err := time.ParseDuration(t); err != nil || d <= 0 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.timeout",
					Message:  fmt.Sprintf("timeout %q is not a positive duration", t),
				})
			}
		}
		if s.Options.Bool("skip_malformed", false) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     base + ".options.skip_malformed",
				Message:  "malformed lines will be dropped instead of failing the run",
			})
		}

		switch s.Kind {
		case KindExpression:
			switch f := strings.ToLower(s.Options.String("format", "tsv")); f {
			case "tsv", "gct":
			default:
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.format",
					Message:  fmt.Sprintf("unknown expression format %q; expected tsv or gct", f),
				})
			}
		case KindProteomics:
			if v := s.Options.Any("header_map"); v != nil {
				if _, ok := v.(map[string]any); !ok {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Path:     base + ".options.header_map",
						Message:  "header_map must be an object of source header to canonical column",
					})
				}
			}
		}
	}
	return issues
}

var knownCompression = map[string]struct{}{
	"": {}, "snappy": {}, "zstd": {}, "gzip": {}, "none": {},
}

func validateOutput(o Output) []Issue {
	var issues []Issue

	loc := strings.TrimSpace(o.Location)
	if loc == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.location",
			Message:  "output.location must not be empty",
		})
	} else if strings.HasPrefix(loc, "s3://") {
		u, err := url.Parse(loc)
		if err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "output.location",
				Message:  fmt.Sprintf("s3 location %q must look like s3://bucket/key", loc),
			})
		}
	} else if !strings.HasSuffix(strings.ToLower(loc), ".parquet") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output.location",
			Message:  "artifact is written as Parquet; consider a .parquet extension",
		})
	}

	if _, ok := knownCompression[strings.ToLower(o.Compression)]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.compression",
			Message:  fmt.Sprintf("unknown compression %q; expected snappy, zstd, gzip or none", o.Compression),
		})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.ParseWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.parse_workers",
			Message:  "parse_workers must not be negative",
		})
	}
	return issues
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires pushgateway_url",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}
	return issues
}
