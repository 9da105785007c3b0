package embedcache

import (
	"context"
	"log/slog"

	"jurisense/backend/internal/pipeline"
)

// Repository persists embeddings by model and content hash.
type Repository interface {
	GetMany(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	SaveMany(ctx context.Context, model string, vectors map[string][]float32) error
}

// Store is a persistent embedding cache shared across restarts and
// workers.
type Store struct {
	next  pipeline.Embedder
	repo  Repository
	model string
}

func NewStore(next pipeline.Embedder, repo Repository, model string) pipeline.Embedder {
	if next == nil || repo == nil {
		return next
	}
	return &Store{next: next, repo: repo, model: model}
}

func (s *Store) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = ContentHash(t)
	}
	return embedThrough(ctx, s.next, texts, keys, s.lookup, s.store)
}

func (s *Store) lookup(ctx context.Context, keys []string) (map[string][]float32, error) {
	hits, err := s.repo.GetMany(ctx, s.model, keys)
	if err != nil {
		// lookup errors fall through to the backend
		slog.WarnContext(ctx, "embedding cache lookup failed", "error", err)
		return map[string][]float32{}, nil
	}
	if len(hits) > 0 {
		slog.DebugContext(ctx, "embedding cache hit (db)", "hits", len(hits), "requested", len(keys))
	}
	return hits, nil
}

func (s *Store) store(ctx context.Context, vectors map[string][]float32) {
	if err := s.repo.SaveMany(ctx, s.model, vectors); err != nil {
		slog.WarnContext(ctx, "failed to cache embeddings", "error", err)
	}
}
