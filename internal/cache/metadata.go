package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// MetadataCache memoizes metadata lookups by (entity, name id). It is
// advisory: every backend error is logged and reported as a miss or ignored,
// so a broken or absent backend only costs latency.
type MetadataCache struct {
	backend Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewMetadataCache wraps backend. A nil backend always misses. A zero ttl
// uses DefaultTTL.
func NewMetadataCache(backend Cache, ttl time.Duration, logger *slog.Logger) *MetadataCache {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataCache{backend: backend, ttl: ttl, logger: logger}
}

// MetadataKey is the cache key for the records of one name on one entity.
func MetadataKey(entityGUID, nameID int64) string {
	return fmt.Sprintf("metabyname:%d:%d", entityGUID, nameID)
}

// Load returns the cached records and true on a hit.
func (c *MetadataCache) Load(ctx context.Context, entityGUID, nameID int64) ([]*model.Metadata, bool) {
	if c == nil || c.backend == nil {
		return nil, false
	}
	key := MetadataKey(entityGUID, nameID)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			c.logger.Warn("metadata cache get failed", "key", key, "err", err)
		}
		return nil, false
	}
	var records []*model.Metadata
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Warn("metadata cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	return records, true
}

// Save stores records. Empty results are not cached so a later create is
// seen without waiting for eviction.
func (c *MetadataCache) Save(ctx context.Context, entityGUID, nameID int64, records []*model.Metadata) {
	if c == nil || c.backend == nil || len(records) == 0 {
		return
	}
	key := MetadataKey(entityGUID, nameID)
	data, err := json.Marshal(records)
	if err != nil {
		c.logger.Warn("metadata cache encode failed", "key", key, "err", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("metadata cache set failed", "key", key, "err", err)
	}
}

// Evict drops the entry for (entity, name id).
func (c *MetadataCache) Evict(ctx context.Context, entityGUID, nameID int64) {
	if c == nil || c.backend == nil {
		return
	}
	key := MetadataKey(entityGUID, nameID)
	if err := c.backend.Delete(ctx, key); err != nil {
		c.logger.Warn("metadata cache delete failed", "key", key, "err", err)
	}
}
