package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Backend schemes.
const (
	SchemeLocal = "local"
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
)

// Location is a parsed storage location: a backend, a bucket for remote
// backends, and a key prefix (a directory for the local backend).
type Location struct {
	Scheme string
	Bucket string
	Prefix string
}

// String renders the location in URI form.
func (l Location) String() string {
	if l.Scheme == SchemeLocal {
		return l.Prefix
	}
	return l.Scheme + "://" + path.Join(l.Bucket, l.Prefix)
}

// ParseLocation parses "s3://bucket/prefix", "gs://bucket/prefix" or a local
// filesystem path.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty location", ErrInvalidURI)
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{Scheme: SchemeLocal, Prefix: raw}, nil
	}
	switch scheme {
	case SchemeS3, SchemeGCS:
	case "file":
		return Location{Scheme: SchemeLocal, Prefix: rest}, nil
	default:
		return Location{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, scheme)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, raw)
	}
	return Location{Scheme: scheme, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

// Options configure the backends an Opener creates.
type Options struct {
	// DefaultScheme and DefaultBucket place scheme-less locations on a
	// remote backend. With the local default, relative paths are resolved
	// against LocalBase.
	DefaultScheme string
	DefaultBucket string
	LocalBase     string
	S3            S3Config
	GCS           GCSConfig
}

// Opener creates and caches one BlobStore per backend bucket.
type Opener struct {
	opts Options

	mu     sync.Mutex
	stores map[string]BlobStore
	newS3  func(ctx context.Context, bucket string, cfg S3Config) (BlobStore, error)
	newGCS func(ctx context.Context, bucket string, cfg GCSConfig) (BlobStore, error)
}

// NewOpener returns an Opener for opts.
func NewOpener(opts Options) *Opener {
	return &Opener{
		opts:   opts,
		stores: make(map[string]BlobStore),
		newS3: func(ctx context.Context, bucket string, cfg S3Config) (BlobStore, error) {
			return NewS3Store(ctx, bucket, cfg)
		},
		newGCS: func(ctx context.Context, bucket string, cfg GCSConfig) (BlobStore, error) {
			return NewGCSStore(ctx, bucket, cfg)
		},
	}
}

// Resolve parses raw and applies the default backend to scheme-less
// locations.
func (o *Opener) Resolve(raw string) (Location, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return Location{}, err
	}
	if loc.Scheme != SchemeLocal || strings.Contains(raw, "://") {
		return loc, nil
	}
	switch o.opts.DefaultScheme {
	case "", SchemeLocal:
		if !filepath.IsAbs(loc.Prefix) && o.opts.LocalBase != "" {
			loc.Prefix = filepath.Join(o.opts.LocalBase, loc.Prefix)
		}
		return loc, nil
	case SchemeS3, SchemeGCS:
		if o.opts.DefaultBucket == "" {
			return Location{}, fmt.Errorf("%w: no default bucket for %q", ErrInvalidURI, raw)
		}
		return Location{Scheme: o.opts.DefaultScheme, Bucket: o.opts.DefaultBucket, Prefix: strings.Trim(raw, "/")}, nil
	default:
		return Location{}, fmt.Errorf("%w: unsupported default scheme %q", ErrInvalidURI, o.opts.DefaultScheme)
	}
}

// Open returns the store for loc. For the local backend the store is rooted
// at loc.Prefix; remote stores are rooted at the bucket and callers join
// loc.Prefix into object paths with ObjectPath.
func (o *Opener) Open(ctx context.Context, loc Location) (BlobStore, error) {
	key := loc.Scheme + "://" + loc.Bucket
	if loc.Scheme == SchemeLocal {
		key = loc.Scheme + "://" + loc.Prefix
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.stores[key]; ok {
		return s, nil
	}

	var (
		s   BlobStore
		err error
	)
	switch loc.Scheme {
	case SchemeLocal:
		s, err = NewLocalStore(loc.Prefix)
	case SchemeS3:
		s, err = o.newS3(ctx, loc.Bucket, o.opts.S3)
	case SchemeGCS:
		s, err = o.newGCS(ctx, loc.Bucket, o.opts.GCS)
	default:
		err = fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, loc.Scheme)
	}
	if err != nil {
		return nil, err
	}
	o.stores[key] = s
	return s, nil
}

// ObjectPath joins name under the location's prefix as the store returned
// by Open expects it.
func ObjectPath(loc Location, name string) string {
	if loc.Scheme == SchemeLocal {
		return name
	}
	return path.Join(loc.Prefix, name)
}

// ReadBlob reads the single object named by raw, for example a context blob
// passed on the command line.
func (o *Opener) ReadBlob(ctx context.Context, raw string) ([]byte, error) {
	loc, err := o.Resolve(raw)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == SchemeLocal {
		dir, file := filepath.Split(loc.Prefix)
		return (&LocalStore{basePath: dir}).Get(ctx, file)
	}
	if loc.Prefix == "" {
		return nil, fmt.Errorf("%w: %q names a bucket, not an object", ErrInvalidURI, raw)
	}
	s, err := o.Open(ctx, Location{Scheme: loc.Scheme, Bucket: loc.Bucket})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, loc.Prefix)
}

// Close closes every store the opener created.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var firstErr error
	for key, s := range o.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(o.stores, key)
	}
	return firstErr
}
