package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// brokenCache fails every operation with a non-miss error.
type brokenCache struct{}

var errBroken = errors.New("backend down")

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return errBroken }
func (brokenCache) Delete(context.Context, string) error { return errBroken }
func (brokenCache) Clear(context.Context) error { return errBroken }
func (brokenCache) Exists(context.Context, string) (bool, error) { return false, errBroken }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMetadataKey(t *testing.T) {
	assert.Equal(t, "metabyname:42:7", MetadataKey(42, 7))
}

func TestMetadataCache_RoundTrip(t *testing.T) {
	backend := NewMemoryCache()
	defer backend.Close()
	c := NewMetadataCache(backend, 0, quietLogger())
	ctx := context.Background()

	_, ok := c.Load(ctx, 42, 7)
	assert.False(t, ok)

	records := []*model.Metadata{{ID: 1, EntityGUID: 42, NameID: 7, Name: "color", Value: "red", ValueType: model.ValueTypeText}}
	c.Save(ctx, 42, 7, records)

	got, ok := c.Load(ctx, 42, 7)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "red", got[0].Value)

	c.Evict(ctx, 42, 7)
	_, ok = c.Load(ctx, 42, 7)
	assert.False(t, ok)
}

func TestMetadataCache_EmptyNotCached(t *testing.T) {
	backend := NewMemoryCache()
	defer backend.Close()
	c := NewMetadataCache(backend, 0, quietLogger())
	ctx := context.Background()

	c.Save(ctx, 42, 7, nil)
	ok, err := backend.Exists(ctx, MetadataKey(42, 7))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadataCache_UsesTTL(t *testing.T) {
	r, mr := newTestRedis(t)
	c := NewMetadataCache(r, 3600*time.Second, quietLogger())

	c.Save(context.Background(), 1, 2, []*model.Metadata{{ID: 9}})
	assert.Equal(t, time.Hour, mr.TTL("kmeta:metabyname:1:2"))
}

func TestMetadataCache_Degrades(t *testing.T) {
	ctx := context.Background()
	records := []*model.Metadata{{ID: 1}}

	for name, c := range map[string]*MetadataCache{
		"nil backend": NewMetadataCache(nil, 0, quietLogger()),
		"broken":      NewMetadataCache(brokenCache{}, 0, quietLogger()),
		"nil cache":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				c.Save(ctx, 1, 2, records)
				c.Evict(ctx, 1, 2)
			})
			_, ok := c.Load(ctx, 1, 2)
			assert.False(t, ok)
		})
	}
}

func TestMetadataCache_CorruptEntryIsMiss(t *testing.T) {
	backend := NewMemoryCache()
	defer backend.Close()
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, MetadataKey(1, 2), []byte("{not json"), 0))

	_, ok := NewMetadataCache(backend, 0, quietLogger()).Load(ctx, 1, 2)
	assert.False(t, ok)
}
