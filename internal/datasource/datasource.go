// Package datasource defines how the pipeline obtains raw input bytes.
package datasource

import (
	"context"
	"io"
)

// Source opens a readable stream for one input. The caller closes it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the source in logs and parse errors.
	Name() string
}
