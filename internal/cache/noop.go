package cache

import (
	"context"
	"time"
)

// NoopCache misses every read and discards every write.
type NoopCache struct{}

func (NoopCache) Get(_ context.Context, key string) ([]byte, error) {
	return nil, ErrCacheMiss{Key: key}
}

func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, string) error { return nil }
func (NoopCache) Clear(context.Context) error { return nil }
func (NoopCache) Exists(context.Context, string) (bool, error) { return false, nil }
