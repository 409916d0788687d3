package datasource

import (
	"bufio"
	"compress/gzip"
	"io"

	"github.com/cockroachdb/errors"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decompress wraps rc so that gzip content is transparently inflated.
//
// Compression is detected from the gzip magic bytes, not from a file
// extension, so a misnamed .vcf that is really .vcf.gz still opens. Plain
// content passes through unchanged. Closing the returned reader closes rc.
// On error rc is closed before returning.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		_ = rc.Close()
		return nil, errors.Wrapf(err, "peek %s", name)
	}
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = rc.Close()
			return nil, errors.Wrapf(err, "gzip %s", name)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	}
	return &readCloser{Reader: br, closers: []io.Closer{rc}}, nil
}

// readCloser forwards reads to Reader and closes every closer in order,
// returning the first error.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
