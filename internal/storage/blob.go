// Package storage persists the site registry as one serialized blob under a
// fixed key. SQLite is the default backend; Redis can be used instead.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = errors.New("not found")

// BlobStore reads and writes whole values by key.
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
	PutBlob(ctx context.Context, key string, value []byte) error
}

// Backend is a BlobStore that holds resources.
type Backend interface {
	BlobStore
	io.Closer
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // "sqlite" (default) or "redis"
	DataDir  string
	RedisURL string
}

// OpenBackend opens the backend named in opts.
func OpenBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "sqlite":
		return Open(opts.DataDir)
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("storage.redis_url is required for the redis backend")
		}
		return OpenRedis(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
