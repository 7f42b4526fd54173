// Package cache provides pluggable key/value cache backends and the
// read-through cache used for metadata lookups by name.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is implemented by every backend. Values are opaque bytes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value for ttl. A zero ttl uses the backend default; a
	// negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds settings shared by all backends.
type Config struct {
	DefaultTTL time.Duration
	// Prefix namespaces keys so several deployments can share a backend.
	Prefix string
}

// DefaultTTL matches the lifetime of a name lookup entry.
const DefaultTTL = time.Hour

// DefaultConfig returns a one hour TTL and the "kmeta:" prefix.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: DefaultTTL,
		Prefix:     "kmeta:",
	}
}

// ErrCacheMiss is returned by Get when the key is absent or expired.
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss reports whether err is, or wraps, a cache miss.
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}
