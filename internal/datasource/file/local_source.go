// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"phoenix/internal/datasource"
)

// Local is a filesystem data source bound to one path.
type Local struct{ path string }

var _ datasource.Source = (*Local)(nil)

// NewLocal returns a Local data source for path. It is safe for concurrent
// use as long as the file is not modified while being read.
func NewLocal(path string) *Local { return &Local{path: path} }

// Name returns the configured path.
func (l *Local) Name() string { return l.path }

// Open opens the configured path for reading.
//
// Behavior:
//   - A context that is already done short-circuits without touching the
//     filesystem.
//   - Filesystem errors are wrapped with the path and keep errors.Is
//     semantics (e.g. os.ErrNotExist).
//   - Gzip input (e.g. .vcf.gz) is transparently decompressed.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", l.path)
	}
	return datasource.Decompress(l.path, f)
}
