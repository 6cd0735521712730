// internal/pipeline/features/cache.go
package features

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hotspot-selection/internal/models"

	"github.com/redis/go-redis/v9"
)

// Cache stores successful feature records by content fingerprint.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*models.FeatureRecord, bool, error)
	Set(ctx context.Context, fingerprint string, rec *models.FeatureRecord, ttl time.Duration) error
}

// ==========================
// Redis
// ==========================

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*models.FeatureRecord, bool, error) {
	val, err := c.client.Get(ctx, c.key(fingerprint)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("feature cache get: %w", err)
	}

	var rec models.FeatureRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, false, fmt.Errorf("feature cache decode: %w", err)
	}
	return &rec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, rec *models.FeatureRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("feature cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("feature cache set: %w", err)
	}
	return nil
}

// ==========================
// In-memory
// ==========================

type memoryEntry struct {
	rec       models.FeatureRecord
	expiresAt time.Time
}

// MemoryCache is a process-local cache. Entries are copied in and out so
// callers never share a record with the cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, fingerprint string) (*models.FeatureRecord, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[fingerprint]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	rec := copyRecord(entry.rec)
	return &rec, true, nil
}

func (c *MemoryCache) Set(_ context.Context, fingerprint string, rec *models.FeatureRecord, ttl time.Duration) error {
	entry := memoryEntry{rec: copyRecord(*rec)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[fingerprint] = entry
	c.mu.Unlock()
	return nil
}

func copyRecord(rec models.FeatureRecord) models.FeatureRecord {
	rec.Keywords = cloneStrings(rec.Keywords)
	rec.Entities = cloneStrings(rec.Entities)
	rec.Anomalies = cloneStrings(rec.Anomalies)
	return rec
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
