// Package redis implements the response cache on a shared Redis instance.
// TTL is enforced natively per key; size pressure is handled by the server's
// eviction policy (allkeys-lru recommended). Hit/savings counters are
// process-local.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/observability"
)

const keyPrefix = "hearth:response:"

// Cache implements domain.ResponseCache backed by Redis.
type Cache struct {
	client  *redis.Client
	metrics *observability.Metrics

	mu             sync.Mutex
	hits           int64
	misses         int64
	savedCost      float64
	savedLatencyMs int64
}

// NewCache creates a Redis-backed response cache.
func NewCache(client *redis.Client, metrics *observability.Metrics) *Cache {
	return &Cache{
		client:  client,
		metrics: metrics,
	}
}

// Get returns the cached response for key, or domain.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) (*domain.GenerationResponse, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var resp domain.GenerationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}

	c.recordHit(&resp)
	return &resp, nil
}

// Set stores a response under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, resp *domain.GenerationResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Stats returns hit/savings statistics. The entry count comes from a key
// scan; byte size and evictions are managed by the server and not reported.
func (c *Cache) Stats(ctx context.Context) domain.CacheStats {
	var entries int64
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		observability.FromContext(ctx).Warn("cache key scan failed",
			observability.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.CacheStats{
		Hits:           c.hits,
		Misses:         c.misses,
		Entries:        entries,
		SavedCost:      c.savedCost,
		SavedLatencyMs: c.savedLatencyMs,
	}
}

// Reset drops all cached responses and zeroes statistics.
func (c *Cache) Reset(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache reset failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache reset scan failed: %w", err)
	}

	c.mu.Lock()
	c.hits = 0
	c.misses = 0
	c.savedCost = 0
	c.savedLatencyMs = 0
	c.mu.Unlock()

	return nil
}

func (c *Cache) recordHit(resp *domain.GenerationResponse) {
	c.mu.Lock()
	c.hits++
	c.savedCost += resp.Cost
	c.savedLatencyMs += resp.LatencyMs
	c.mu.Unlock()
	c.metrics.RecordCacheHit()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	c.metrics.RecordCacheMiss()
}
