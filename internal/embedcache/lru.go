package embedcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"jurisense/backend/internal/pipeline"
)

// LRU keeps recent embeddings in process memory.
type LRU struct {
	next  pipeline.Embedder
	model string
	cache *expirable.LRU[string, []float32]
}

// NewLRU wraps next with an expiring in-memory cache. It returns next
// unchanged when size or ttl disable caching.
func NewLRU(next pipeline.Embedder, model string, size int, ttl time.Duration) pipeline.Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &LRU{
		next:  next,
		model: model,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (l *LRU) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = Key(l.model, t)
	}
	return embedThrough(ctx, l.next, texts, keys, l.lookup, l.store)
}

func (l *LRU) lookup(ctx context.Context, keys []string) (map[string][]float32, error) {
	hits := make(map[string][]float32)
	for _, k := range keys {
		if v, ok := l.cache.Get(k); ok {
			hits[k] = v
		}
	}
	if len(hits) > 0 {
		slog.DebugContext(ctx, "embedding cache hit (lru)", "hits", len(hits), "requested", len(keys))
	}
	return hits, nil
}

func (l *LRU) store(ctx context.Context, vectors map[string][]float32) {
	for k, v := range vectors {
		l.cache.Add(k, v)
	}
}
