// Package fs implements store.Store on the local filesystem.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"phoenix/internal/config"
	"phoenix/internal/store"
)

func init() {
	store.Register(store.SchemeFile, func(_ context.Context, _ store.Location, _ config.S3Config) (store.Store, error) {
		return New(""), nil
	})
}

// Store maps keys to file paths. With an empty root keys are used as paths
// as given (relative to the working directory or absolute).
type Store struct {
	root string
}

var _ store.Store = (*Store)(nil)

// New returns a filesystem store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) pathFor(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if s.root == "" {
		return filepath.Clean(key), nil
	}
	clean := filepath.Clean("/" + filepath.ToSlash(key))
	return filepath.Join(s.root, clean), nil
}

// Put writes r to a temp file next to the target and renames it into place,
// so readers never observe a partial artifact. An existing file is replaced.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) (store.Info, error) {
	if err := ctx.Err(); err != nil {
		return store.Info{}, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return store.Info{}, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return store.Info{}, errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".phoenix-*.tmp")
	if err != nil {
		return store.Info{}, errors.Wrap(err, "create temp file")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return store.Info{}, errors.Wrapf(err, "write %s", key)
	}
	if err := tmp.Sync(); err != nil {
		return store.Info{}, errors.Wrapf(err, "sync %s", key)
	}
	if err := tmp.Close(); err != nil {
		return store.Info{}, errors.Wrapf(err, "close %s", key)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return store.Info{}, errors.Wrapf(err, "rename into %s", path)
	}
	committed = true

	st, err := os.Stat(path)
	if err != nil {
		return store.Info{}, errors.Wrapf(err, "stat %s", path)
	}
	return store.Info{
		Key:          key,
		Size:         size,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		LastModified: st.ModTime().UTC(),
	}, nil
}

// Get opens the file at key. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (store.Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return store.Info{}, nil, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return store.Info{}, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return store.Info{}, nil, notFound(err, key)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return store.Info{}, nil, errors.Wrapf(err, "stat %s", path)
	}
	return store.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}, f, nil
}

// Head stats the file at key.
func (s *Store) Head(ctx context.Context, key string) (store.Info, error) {
	if err := ctx.Err(); err != nil {
		return store.Info{}, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return store.Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return store.Info{}, notFound(err, key)
	}
	if st.IsDir() {
		return store.Info{}, errors.Newf("%s is a directory", path)
	}
	return store.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}, nil
}

func notFound(err error, key string) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return errors.Mark(errors.Wrapf(err, "open %s", key), store.ErrNotFound)
	}
	return errors.Wrapf(err, "open %s", key)
}
