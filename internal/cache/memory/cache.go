// Package memory implements the default response cache: an in-process
// key-value store bounded by total byte size (LRU eviction) and by
// per-entry TTL, whichever triggers first. Expiry is checked lazily on Get;
// no background sweeper runs.
package memory

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/observability"
)

type entry struct {
	key       string
	resp      *domain.GenerationResponse
	size      int64
	expiresAt time.Time
}

// Cache implements domain.ResponseCache. Safe for concurrent use; sets for
// the same key are whole-value replacements.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	order    *list.List // front = most recently used
	items    map[string]*list.Element

	hits           int64
	misses         int64
	evictions      int64
	savedCost      float64
	savedLatencyMs int64

	metrics *observability.Metrics
	now     func() time.Time
}

// NewCache creates a cache holding at most maxBytes of serialized responses.
func NewCache(maxBytes int64, metrics *observability.Metrics) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Get returns the cached response for key, or domain.ErrCacheMiss. A hit
// also accrues the saved cost and latency of the stored response.
func (c *Cache) Get(_ context.Context, key string) (*domain.GenerationResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.metrics.RecordCacheMiss()
		return nil, domain.ErrCacheMiss
	}

	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeLocked(el)
		c.misses++
		c.metrics.RecordCacheMiss()
		return nil, domain.ErrCacheMiss
	}

	c.order.MoveToFront(el)
	c.hits++
	c.savedCost += e.resp.Cost
	c.savedLatencyMs += e.resp.LatencyMs
	c.metrics.RecordCacheHit()

	return e.resp, nil
}

// Set stores a response under key. The entry's size is its JSON-serialized
// length; storing may evict least-recently-used entries to stay under the
// byte bound.
func (c *Cache) Set(_ context.Context, key string, resp *domain.GenerationResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	size := int64(len(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}

	e := &entry{
		key:       key,
		resp:      resp,
		size:      size,
		expiresAt: c.now().Add(ttl),
	}
	c.items[key] = c.order.PushFront(e)
	c.size += size

	for c.size > c.maxBytes && c.order.Len() > 0 {
		oldest := c.order.Back()
		c.removeLocked(oldest)
		c.evictions++
	}

	return nil
}

// Stats returns hit/savings statistics.
func (c *Cache) Stats(_ context.Context) domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.CacheStats{
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		Entries:        int64(c.order.Len()),
		SizeBytes:      c.size,
		SavedCost:      c.savedCost,
		SavedLatencyMs: c.savedLatencyMs,
	}
}

// Reset drops all entries and zeroes statistics.
func (c *Cache) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.size = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.savedCost = 0
	c.savedLatencyMs = 0

	return nil
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
	c.size -= e.size
}
