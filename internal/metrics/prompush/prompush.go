// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// The pipeline is a batch job with no scrape endpoint, so collected metrics
// are pushed to a Pushgateway when the run ends. The job label is the
// Pushgateway grouping key; the remaining labels become Prometheus labels.
package prompush

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"phoenix/internal/metrics"
)

const defaultJob = "phoenix"

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // step, status
	stepDuration  *prometheus.SummaryVec // step, status
	recordCounter *prometheus.CounterVec // kind
	skipCounter   *prometheus.CounterVec // kind
	bytesCounter  prometheus.Counter
	queryCounter  *prometheus.CounterVec // engine
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Pushgateway backend. An empty jobName defaults to
// "phoenix".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = defaultJob
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Duration of pipeline steps in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Harmonized records produced per source kind.",
		}, []string{"kind"}),
		skipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SkippedLinesTotal,
			Help: "Malformed input lines dropped per source kind.",
		}, []string{"kind"}),
		bytesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.ArtifactBytesTotal,
			Help: "Bytes written to the harmonized artifact.",
		}),
		queryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.QueryRowsTotal,
			Help: "Rows returned by metadata queries per engine.",
		}, []string{"engine"}),
	}

	for _, c := range []prometheus.Collector{
		b.stepCounter, b.stepDuration, b.recordCounter, b.skipCounter, b.bytesCounter, b.queryCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "prompush: register collector")
		}
	}
	return b, nil
}

// IncCounter routes a named counter to its collector. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RecordsTotal:
		if b.recordCounter != nil {
			b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.SkippedLinesTotal:
		if b.skipCounter != nil {
			b.skipCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.ArtifactBytesTotal:
		if b.bytesCounter != nil {
			b.bytesCounter.Add(delta)
		}
	case metrics.QueryRowsTotal:
		if b.queryCounter != nil {
			b.queryCounter.WithLabelValues(labels["engine"]).Add(delta)
		}
	}
}

// ObserveHistogram records step durations. Other names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return errors.Wrapf(err, "prompush: push to %s", b.gatewayURL)
	}
	return nil
}
