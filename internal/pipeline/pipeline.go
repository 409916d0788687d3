// Package pipeline drives one harmonization run: every configured source is
// opened and parsed, the tables are harmonized in source order and the
// artifact is written. It is glue only; formats, schema and storage live in
// their own packages.
package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phoenix/internal/config"
	"phoenix/internal/datasource"
	"phoenix/internal/datasource/file"
	"phoenix/internal/datasource/httpds"
	"phoenix/internal/harmonize"
	"phoenix/internal/logging"
	"phoenix/internal/metrics"
	"phoenix/internal/metrics/prompush"
	"phoenix/internal/parser"
	_ "phoenix/internal/parser/all"
	"phoenix/internal/records"
)

// Step names reported to metrics.
const (
	StepParse = "parse"
	StepWrite = "write"
)

// Result summarizes a finished run.
type Result struct {
	RunID   string            `json:"run_id"`
	Sources int               `json:"sources"`
	Skipped int               `json:"skipped"`
	Summary harmonize.Summary `json:"summary"`
}

// Runner executes a validated pipeline.
type Runner struct {
	cfg config.Pipeline
	log *zap.SugaredLogger
}

// New returns a Runner for cfg.
func New(cfg config.Pipeline, log *zap.SugaredLogger) *Runner {
	return &Runner{cfg: cfg, log: logging.OrNop(log)}
}

// Run parses every source and writes the artifact. The first failing source
// cancels the others and aborts the run; no artifact is written then.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	log := r.log.With(logging.FieldRunID, runID, logging.FieldJob, r.cfg.Job)

	sources, err := ExpandSources(r.cfg.Sources)
	if err != nil {
		return Result{}, err
	}
	log.Infow("run started", "sources", len(sources), "workers", r.workers())

	tables, err := r.parseAll(ctx, sources, log)
	if err != nil {
		return Result{}, err
	}

	res := Result{RunID: runID, Sources: len(sources)}
	for _, t := range tables {
		res.Skipped += t.Skipped
	}

	start := time.Now()
	sum, err := harmonize.New(r.cfg.Output, log).Write(ctx, r.cfg.Output.Location, tables...)
	metrics.RecordStep(r.cfg.Job, StepWrite, err, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	metrics.RecordArtifact(r.cfg.Job, sum.Bytes)
	res.Summary = sum

	log.Infow("run finished",
		logging.FieldRows, sum.Rows,
		logging.FieldSkipped, res.Skipped,
		logging.FieldLocation, sum.Location,
	)
	return res, nil
}

func (r *Runner) workers() int {
	if r.cfg.Runtime.ParseWorkers < 1 {
		return 1
	}
	return r.cfg.Runtime.ParseWorkers
}

// parseAll parses sources with at most workers() in flight. Results are
// slotted by index so the output order is the configured order.
func (r *Runner) parseAll(ctx context.Context, sources []config.Source, log *zap.SugaredLogger) ([]records.Table, error) {
	tables := make([]records.Table, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for i, src := range sources {
		g.Go(func() error {
			start := time.Now()
			t, err := r.parseOne(gctx, src, log)
			metrics.RecordStep(r.cfg.Job, StepParse, err, time.Since(start))
			if err != nil {
				return errors.Wrapf(err, "source %d (%s %s)", i, src.Kind, src.Path)
			}
			metrics.RecordRows(r.cfg.Job, src.Kind, t.Len())
			metrics.RecordSkipped(r.cfg.Job, src.Kind, t.Skipped)
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (r *Runner) parseOne(ctx context.Context, src config.Source, log *zap.SugaredLogger) (records.Table, error) {
	p, err := parser.New(src.Kind, src.Options, log)
	if err != nil {
		return records.Table{}, err
	}
	ds, err := OpenSource(src)
	if err != nil {
		return records.Table{}, err
	}
	return parser.ParseSource(ctx, p, ds, log)
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// OpenSource resolves a source path to a data source: http(s) URLs are
// fetched, anything else is read from disk.
func OpenSource(src config.Source) (datasource.Source, error) {
	if !isURL(src.Path) {
		return file.NewLocal(src.Path), nil
	}
	cfg := httpds.Config{
		InsecureSkipVerify: src.Options.Bool("insecure_skip_verify", false),
	}
	if t := src.Options.String("timeout", ""); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, errors.Wrapf(err, "source %s: timeout", src.Path)
		}
		cfg.Timeout = d
	}
	if hs := src.Options.StringMap("headers"); len(hs) > 0 {
		cfg.Headers = http.Header{}
		for k, v := range hs {
			cfg.Headers.Set(k, v)
		}
	}
	return httpds.New(src.Path, cfg), nil
}

// ExpandSources replaces every source marked manifest: true with one source
// per manifest entry, in manifest order. Relative entries are resolved
// against the manifest's directory.
func ExpandSources(sources []config.Source) ([]config.Source, error) {
	out := make([]config.Source, 0, len(sources))
	for _, s := range sources {
		if !s.Options.Bool("manifest", false) {
			out = append(out, s)
			continue
		}
		entries, err := file.ReadList(s.Path)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, errors.Newf("manifest %s lists no inputs", s.Path)
		}
		opts := make(config.Options, len(s.Options))
		for k, v := range s.Options {
			if k != "manifest" {
				opts[k] = v
			}
		}
		dir := filepath.Dir(s.Path)
		for _, e := range entries {
			if !isURL(e) && !filepath.IsAbs(e) {
				e = filepath.Join(dir, e)
			}
			out = append(out, config.Source{Kind: s.Kind, Path: e, Options: opts})
		}
	}
	return out, nil
}

// SetupMetrics installs the configured metrics backend. The returned flush
// function pushes collected metrics and is safe to call when the backend is
// the no-op default.
func SetupMetrics(cfg config.MetricsConfig, job string, log *zap.SugaredLogger) (func(), error) {
	log = logging.OrNop(log)
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		metrics.Reset()
	case "pushgateway":
		b, err := prompush.NewBackend(job, cfg.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
	default:
		log.Warnw("unknown metrics backend, metrics disabled", "backend", cfg.Backend)
		metrics.Reset()
	}
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warnw("metrics flush failed", logging.FieldError, err.Error())
		}
	}, nil
}
