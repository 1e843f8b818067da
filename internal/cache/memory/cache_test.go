package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberio/hearth/internal/domain"
)

func newTestCache(maxBytes int64) (*Cache, *time.Time) {
	c := NewCache(maxBytes, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()

	t.Run("should miss on unknown key", func(t *testing.T) {
		c, _ := newTestCache(1 << 20)

		resp, err := c.Get(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrCacheMiss)
		require.Nil(t, resp)
	})

	t.Run("should round-trip a stored response", func(t *testing.T) {
		c, _ := newTestCache(1 << 20)
		stored := &domain.GenerationResponse{
			ID:      "resp-1",
			Content: "hello world",
			Model:   "gpt-4",
			Cost:    0.002,
		}

		require.NoError(t, c.Set(ctx, "key-1", stored, time.Hour))

		got, err := c.Get(ctx, "key-1")
		require.NoError(t, err)
		require.Equal(t, "hello world", got.Content)
		require.Equal(t, "gpt-4", got.Model)
	})

	t.Run("should replace the whole value on overwrite", func(t *testing.T) {
		c, _ := newTestCache(1 << 20)
		require.NoError(t, c.Set(ctx, "key-1", &domain.GenerationResponse{Content: "old"}, time.Hour))
		require.NoError(t, c.Set(ctx, "key-1", &domain.GenerationResponse{Content: "new"}, time.Hour))

		got, err := c.Get(ctx, "key-1")
		require.NoError(t, err)
		require.Equal(t, "new", got.Content)
		require.Equal(t, int64(1), c.Stats(ctx).Entries)
	})
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()

	t.Run("should expire entries lazily after their TTL", func(t *testing.T) {
		c, now := newTestCache(1 << 20)
		require.NoError(t, c.Set(ctx, "key-1", &domain.GenerationResponse{Content: "hello"}, time.Hour))

		*now = now.Add(59 * time.Minute)
		_, err := c.Get(ctx, "key-1")
		require.NoError(t, err)

		*now = now.Add(2 * time.Minute)
		_, err = c.Get(ctx, "key-1")
		require.ErrorIs(t, err, domain.ErrCacheMiss)

		// The expired entry no longer occupies space.
		require.Equal(t, int64(0), c.Stats(ctx).Entries)
		require.Equal(t, int64(0), c.Stats(ctx).SizeBytes)
	})
}

func TestCache_Eviction(t *testing.T) {
	ctx := context.Background()

	bigResponse := func(id string) *domain.GenerationResponse {
		return &domain.GenerationResponse{ID: id, Content: strings.Repeat("x", 400)}
	}

	t.Run("should evict least recently used entries when over the byte bound", func(t *testing.T) {
		// Room for roughly two entries of ~500 serialized bytes.
		c, _ := newTestCache(1100)

		require.NoError(t, c.Set(ctx, "a", bigResponse("a"), time.Hour))
		require.NoError(t, c.Set(ctx, "b", bigResponse("b"), time.Hour))

		// Touch "a" so "b" becomes the eviction candidate.
		_, err := c.Get(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, c.Set(ctx, "c", bigResponse("c"), time.Hour))

		_, err = c.Get(ctx, "a")
		require.NoError(t, err)
		_, err = c.Get(ctx, "c")
		require.NoError(t, err)
		_, err = c.Get(ctx, "b")
		require.ErrorIs(t, err, domain.ErrCacheMiss)

		require.Equal(t, int64(1), c.Stats(ctx).Evictions)
	})

	t.Run("should stay under the bound across many inserts", func(t *testing.T) {
		c, _ := newTestCache(2000)

		for i := 0; i < 20; i++ {
			key := fmt.Sprintf("key-%d", i)
			require.NoError(t, c.Set(ctx, key, bigResponse(key), time.Hour))
			require.LessOrEqual(t, c.Stats(ctx).SizeBytes, int64(2000))
		}
	})
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()

	t.Run("should accrue hits, misses and savings", func(t *testing.T) {
		c, _ := newTestCache(1 << 20)
		require.NoError(t, c.Set(ctx, "key-1", &domain.GenerationResponse{
			Content:   "hello",
			Cost:      0.01,
			LatencyMs: 250,
		}, time.Hour))

		_, _ = c.Get(ctx, "missing")
		_, _ = c.Get(ctx, "key-1")
		_, _ = c.Get(ctx, "key-1")

		stats := c.Stats(ctx)
		require.Equal(t, int64(2), stats.Hits)
		require.Equal(t, int64(1), stats.Misses)
		require.InDelta(t, 0.02, stats.SavedCost, 0.0001)
		require.Equal(t, int64(500), stats.SavedLatencyMs)
	})

	t.Run("should drop everything on reset", func(t *testing.T) {
		c, _ := newTestCache(1 << 20)
		require.NoError(t, c.Set(ctx, "key-1", &domain.GenerationResponse{Content: "hello"}, time.Hour))
		_, _ = c.Get(ctx, "key-1")

		require.NoError(t, c.Reset(ctx))

		stats := c.Stats(ctx)
		require.Equal(t, int64(0), stats.Entries)
		require.Equal(t, int64(0), stats.Hits)
		require.Equal(t, int64(0), stats.SizeBytes)

		_, err := c.Get(ctx, "key-1")
		require.ErrorIs(t, err, domain.ErrCacheMiss)
	})
}
