// Package store persists the harmonized artifact at a location: a local path
// or an s3://bucket/key URL.
//
// Backends register a Factory for their URL scheme at init time. Importing
// phoenix/internal/store/all enables every built-in backend.
package store

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"phoenix/internal/config"
)

// Location schemes.
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
)

// ErrNotFound is returned by Get and Head when no object exists at the key.
var ErrNotFound = errors.New("artifact not found")

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a minimal object store. Put always overwrites.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
}

// Location is a parsed artifact location.
type Location struct {
	Scheme string
	// Bucket is set for s3 locations only.
	Bucket string
	// Key is the object key (s3) or filesystem path (file).
	Key string
}

func (l Location) String() string {
	if l.Scheme == SchemeS3 {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// ParseLocation accepts "s3://bucket/key", "file:///path" and plain paths.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, errors.New("empty artifact location")
	}
	switch {
	case strings.HasPrefix(s, "s3://"):
		u, err := url.Parse(s)
		if err != nil {
			return Location{}, errors.Wrapf(err, "parse location %q", s)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, errors.Newf("location %q must look like s3://bucket/key", s)
		}
		return Location{Scheme: SchemeS3, Bucket: u.Host, Key: key}, nil
	case strings.HasPrefix(s, "file://"):
		p := strings.TrimPrefix(s, "file://")
		if p == "" {
			return Location{}, errors.Newf("location %q has no path", s)
		}
		return Location{Scheme: SchemeFile, Key: p}, nil
	}
	return Location{Scheme: SchemeFile, Key: s}, nil
}

// Factory opens the store serving loc.
type Factory func(ctx context.Context, loc Location, cfg config.S3Config) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register registers (or replaces) the factory for scheme.
func Register(scheme string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = f
}

// Schemes returns the registered schemes in sorted order.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open parses location and opens the backend registered for its scheme. The
// returned key addresses the artifact inside that store.
func Open(ctx context.Context, location string, cfg config.S3Config) (Store, string, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, "", err
	}
	registryMu.RLock()
	f, ok := registry[loc.Scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, "", errors.Newf("no store registered for scheme %q (registered: %s)",
			loc.Scheme, strings.Join(Schemes(), ", "))
	}
	s, err := f(ctx, loc, cfg)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open %s store at %s", loc.Scheme, loc)
	}
	return s, loc.Key, nil
}

// ReadAll fetches the whole object at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return data, nil
}
