package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache. Expired entries are dropped lazily
// on access and by a background sweep.
type MemoryCache struct {
	entries sync.Map
	config  Config
	stop    context.CancelFunc
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// NewMemoryCache returns a MemoryCache with DefaultConfig.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultConfig())
}

// NewMemoryCacheWithConfig returns a MemoryCache and starts its sweeper.
// Call Close to stop it.
func NewMemoryCacheWithConfig(config Config) *MemoryCache {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryCache{config: config, stop: cancel}
	go m.sweep(ctx, time.Minute)
	return m
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := m.config.Prefix + key
	v, ok := m.entries.Load(full)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	e := v.(memoryEntry)
	if e.expired(time.Now()) {
		m.entries.Delete(full)
		return nil, ErrCacheMiss{Key: key}
	}
	return e.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries.Store(m.config.Prefix+key, e)
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries.Delete(m.config.Prefix + key)
	return nil
}

func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries.Range(func(k, _ any) bool {
		m.entries.Delete(k)
		return true
	})
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if IsCacheMiss(err) {
		return false, nil
	}
	return err == nil, err
}

// Close stops the background sweeper.
func (m *MemoryCache) Close() error {
	if m.stop != nil {
		m.stop()
	}
	return nil
}

func (m *MemoryCache) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.entries.Range(func(k, v any) bool {
				if v.(memoryEntry).expired(now) {
					m.entries.Delete(k)
				}
				return true
			})
		}
	}
}
