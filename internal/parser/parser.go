// Package parser turns raw source bytes into harmonized records.
//
// Each source format lives in its own subpackage (vcf, expression,
// proteomics) and registers a Factory for its kind at init time. Importing
// phoenix/internal/parser/all enables every format. Callers stay
// format-agnostic: they look up a parser with New and feed it a
// datasource.Source with ParseSource.
package parser

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/config"
	"phoenix/internal/datasource"
	"phoenix/internal/logging"
	"phoenix/internal/records"
)

// Parser reads one source and returns its records in source order.
//
// Implementations are pure with respect to their input: they hold no state
// across calls and return a fresh table each time.
type Parser interface {
	Kind() string
	Parse(ctx context.Context, name string, r io.Reader) (records.Table, error)
}

// Factory builds a parser from its free-form options.
type Factory func(opt config.Options, log *zap.SugaredLogger) (Parser, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. It is typically
// called from a format package's init function.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the parser registered for kind.
func New(kind string, opt config.Options, log *zap.SugaredLogger) (Parser, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Newf("no parser registered for kind %q", kind)
	}
	if opt == nil {
		opt = config.Options{}
	}
	return f(opt, logging.Component(log, kind))
}

// ParseSource opens src, parses it with p and closes it on every exit path.
func ParseSource(ctx context.Context, p Parser, src datasource.Source, log *zap.SugaredLogger) (records.Table, error) {
	log = logging.OrNop(log)
	start := time.Now()

	rc, err := src.Open(ctx)
	if err != nil {
		return records.Table{}, errors.Wrapf(err, "%s: open source", p.Kind())
	}
	defer rc.Close()

	t, err := p.Parse(ctx, src.Name(), rc)
	if err != nil {
		return records.Table{}, err
	}
	log.Infow("parsed source",
		logging.FieldKind, p.Kind(),
		logging.FieldSource, src.Name(),
		logging.FieldRows, t.Len(),
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return t, nil
}
