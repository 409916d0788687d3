// Package query loads a harmonized artifact and filters its rows by exact
// metadata matches.
//
// Filters are ANDed: a row qualifies when its metadata is non-null and holds
// every filter key with exactly the expected value. An empty filter set
// returns every row. A query that matches nothing returns an empty result,
// not an error. The artifact is only read.
package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/artifact"
	"phoenix/internal/config"
	"phoenix/internal/logging"
	"phoenix/internal/metrics"
	"phoenix/internal/records"
	"phoenix/internal/store"
	_ "phoenix/internal/store/all"
)

// Engine filters loaded rows. Every engine returns the same rows in artifact
// order.
type Engine interface {
	Name() string
	Filter(ctx context.Context, rows []records.Record, filters map[string]string) ([]records.Record, error)
}

// Engine names accepted by EngineByName.
const (
	EngineScan   = "scan"
	EngineIndex  = "index"
	EngineSQLite = "sqlite"
)

// EngineByName returns the engine registered under name. The empty name is
// the scan engine.
func EngineByName(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineScan:
		return Scan{}, nil
	case EngineIndex:
		return Indexed{}, nil
	case EngineSQLite:
		return SQL{}, nil
	}
	return nil, errors.Newf("unknown query engine %q; expected scan, index or sqlite", name)
}

// Query loads the artifact at location and returns the rows matching
// filters using a full scan.
func Query(ctx context.Context, location string, filters map[string]string) ([]records.Record, error) {
	return New(Scan{}, config.S3Config{}, nil).Run(ctx, location, filters)
}

// Querier runs queries against artifacts with a chosen engine.
type Querier struct {
	engine Engine
	s3     config.S3Config
	log    *zap.SugaredLogger
}

// New returns a Querier. A nil engine means Scan.
func New(engine Engine, s3 config.S3Config, log *zap.SugaredLogger) *Querier {
	if engine == nil {
		engine = Scan{}
	}
	return &Querier{engine: engine, s3: s3, log: logging.Component(log, "query")}
}

// Run loads location and filters it.
func (q *Querier) Run(ctx context.Context, location string, filters map[string]string) ([]records.Record, error) {
	start := time.Now()
	rows, err := Load(ctx, location, q.s3)
	if err != nil {
		return nil, err
	}
	out, err := q.engine.Filter(ctx, rows, filters)
	if err != nil {
		return nil, errors.Wrapf(err, "%s engine", q.engine.Name())
	}
	metrics.RecordQuery(q.engine.Name(), len(out))
	q.log.Infow("query done",
		logging.FieldLocation, location,
		logging.FieldEngine, q.engine.Name(),
		logging.FieldFilters, FormatFilters(filters),
		logging.FieldRows, len(out),
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Load reads and decodes the whole artifact at location.
func Load(ctx context.Context, location string, s3 config.S3Config) ([]records.Record, error) {
	s, key, err := store.Open(ctx, location, s3)
	if err != nil {
		return nil, err
	}
	data, err := store.ReadAll(ctx, s, key)
	if err != nil {
		return nil, errors.Wrapf(err, "load artifact %s", location)
	}
	rows, err := artifact.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode artifact %s", location)
	}
	return rows, nil
}

// ParseFilters turns "key=value" arguments into a filter map. Values may
// contain '='; the first one separates key from value.
func ParseFilters(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, errors.Newf("filter %q must look like key=value", a)
		}
		out[k] = v
	}
	return out, nil
}

// FormatFilters renders filters as "k=v,k=v" with sorted keys.
func FormatFilters(filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + filters[k]
	}
	return strings.Join(parts, ",")
}

// Scan checks every row against the filters.
type Scan struct{}

// Name implements Engine.
func (Scan) Name() string { return EngineScan }

// Filter implements Engine.
func (Scan) Filter(ctx context.Context, rows []records.Record, filters map[string]string) ([]records.Record, error) {
	out := make([]records.Record, 0)
	for i, r := range rows {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if r.Metadata.Matches(filters) {
			out = append(out, r)
		}
	}
	return out, nil
}
