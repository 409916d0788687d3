// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the harmonization pipeline.
//
// The package exposes a narrow Backend interface (counters and durations) and
// a global, pluggable backend that defaults to a no-op implementation, so
// metrics are always safe to call even when no real backend is configured.
// Concrete systems live in subpackages (prompush).
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by the helpers below and by backends.
const (
	StepTotal           = "phoenix_step_total"
	StepDurationSeconds = "phoenix_step_duration_seconds"
	RecordsTotal        = "phoenix_records_total"
	SkippedLinesTotal   = "phoenix_skipped_lines_total"
	ArtifactBytesTotal  = "phoenix_artifact_bytes_total"
	QueryRowsTotal      = "phoenix_query_rows_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Reset reinstalls the no-op backend.
func Reset() {
	mu.Lock()
	backend = nopBackend{}
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one pipeline step
// (parse, harmonize, write, query).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows counts records produced for a source kind (vcf, expression,
// proteomics).
func RecordRows(job, kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordSkipped counts malformed input lines dropped under skip_malformed.
func RecordSkipped(job, kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(SkippedLinesTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordArtifact counts bytes written to the harmonized artifact.
func RecordArtifact(job string, bytes int64) {
	if bytes <= 0 {
		return
	}
	current().IncCounter(ArtifactBytesTotal, float64(bytes), Labels{"job": job})
}

// RecordQuery counts rows returned by a query engine.
func RecordQuery(engine string, rows int) {
	current().IncCounter(QueryRowsTotal, float64(rows), Labels{"engine": engine})
}
