// Package embedcache memoizes embedding vectors keyed by a stable hash
// of normalized chunk content, so identical content across documents
// never hits the model twice.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"

	"github.com/quarry-ai/quarry/internal/core"
)

// Store is the cache backend: Redis in production, an in-process
// TTL-bounded map otherwise.
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
	Entries(ctx context.Context) int
	Evictions() int64
}

// Stats is a hit/miss snapshot, exposed via the stats endpoint.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// CachedProvider decorates an EmbeddingProvider with the cache. It is
// itself an EmbeddingProvider, so callers cannot tell the difference.
type CachedProvider struct {
	inner core.EmbeddingProvider
	store Store

	hits   atomic.Int64
	misses atomic.Int64
}

var _ core.EmbeddingProvider = (*CachedProvider)(nil)

func NewCachedProvider(inner core.EmbeddingProvider, store Store) *CachedProvider {
	return &CachedProvider{inner: inner, store: store}
}

// EmbedTexts serves what it can from cache and batches the misses into a
// single model call, preserving input order in the output.
func (c *CachedProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		key := ContentHash(t)
		if vec, ok := c.store.Get(ctx, key); ok {
			c.hits.Add(1)
			out[i] = vec
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedTexts(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			out[i] = vecs[j]
			c.store.Set(ctx, ContentHash(texts[i]), vecs[j])
		}
	}
	return out, nil
}

// Stats returns the current counters. Entries may touch the backend.
func (c *CachedProvider) Stats(ctx context.Context) Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: c.store.Evictions(),
		Entries:   c.store.Entries(ctx),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// ContentHash is the cache key: SHA-256 over whitespace-normalized,
// lowercased content. Keyed by content, not chunk id, so duplicate
// content across documents shares one entry.
func ContentHash(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
