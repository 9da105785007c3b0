package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/vector"
)

// Hit is one passage returned by an index search.
type Hit struct {
	Content    string  `json:"content"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Index stores chunk vectors for a single retrieval run and searches them.
// Each run writes under its own id and deletes its objects when done.
type Index interface {
	Insert(ctx context.Context, runID, docID string, chunks []pipeline.VectorChunk) error
	Search(ctx context.Context, runID string, vector []float32, limit int) ([]Hit, error)
	DeleteRun(ctx context.Context, runID string) error
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

// Service selects the passages that feed the summary. Without an Index it
// scores chunks in memory; with a Reranker it reorders the hits.
type Service struct {
	embedder pipeline.Embedder
	index    Index
	reranker Reranker
	logger   *QueryLogger
	query    string
}

func NewService(e pipeline.Embedder, idx Index, r Reranker, l *QueryLogger) *Service {
	return &Service{embedder: e, index: idx, reranker: r, logger: l, query: pipeline.RetrievalQuery}
}

func (s *Service) Retrieve(ctx context.Context, docID string, chunks []pipeline.VectorChunk, topK int) ([]string, error) {
	start := time.Now()
	if len(chunks) == 0 || topK == 0 {
		return []string{}, nil
	}
	if topK < 0 {
		topK = pipeline.DefaultTopK
	}

	vec, err := pipeline.EmbedQuery(ctx, s.query, s.embedder)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	if s.index != nil {
		hits, err = s.searchIndex(ctx, docID, vec, chunks, topK)
		if err != nil {
			return nil, err
		}
	} else {
		hits = searchMemory(vec, chunks, topK)
	}

	reranked := false
	if s.reranker != nil && len(hits) > 1 {
		hits, reranked = s.rerank(ctx, hits)
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Content
	}

	if s.logger != nil {
		entry := newQueryLogEntry(docID, topK, len(chunks), hits)
		entry.RunID = middleware.GetRunID(ctx)
		entry.Query = s.query
		entry.Index = s.indexName()
		entry.Reranked = reranked
		entry.Duration = time.Since(start)
		entry.CorrelationID = middleware.GetCorrelationID(ctx)
		s.logger.Log(entry)
	}
	return texts, nil
}

// searchIndex writes the chunks under a fresh run id, searches them and
// removes them again, even when the caller's context is already done.
func (s *Service) searchIndex(ctx context.Context, docID string, vec []float32, chunks []pipeline.VectorChunk, topK int) ([]Hit, error) {
	runID := uuid.New().String()
	defer func() {
		if err := s.index.DeleteRun(context.WithoutCancel(ctx), runID); err != nil {
			slog.WarnContext(ctx, "failed to delete run vectors", "error", err, "index_run", runID)
		}
	}()

	if err := s.index.Insert(ctx, runID, docID, chunks); err != nil {
		return nil, err
	}
	return s.index.Search(ctx, runID, vec, topK)
}

// rerank keeps the similarity order when the rerank provider fails.
func (s *Service) rerank(ctx context.Context, hits []Hit) ([]Hit, bool) {
	contents := make([]string, len(hits))
	for i, h := range hits {
		contents[i] = h.Content
	}

	indices, err := s.reranker.Rerank(ctx, s.query, contents)
	if err != nil {
		slog.WarnContext(ctx, "rerank failed, keeping similarity order", "error", err)
		return hits, false
	}

	reranked := make([]Hit, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(hits) || seen[idx] {
			continue
		}
		seen[idx] = true
		reranked = append(reranked, hits[idx])
	}
	if len(reranked) == 0 {
		return hits, false
	}
	return reranked, true
}

func (s *Service) indexName() string {
	if s.index != nil {
		return "weaviate"
	}
	return "memory"
}

func searchMemory(query []float32, chunks []pipeline.VectorChunk, limit int) []Hit {
	embeddings := make([][]float32, len(chunks))
	for i, c := range chunks {
		embeddings[i] = c.Embedding
	}

	scored := vector.TopK(query, embeddings, limit)
	hits := make([]Hit, len(scored))
	for i, sc := range scored {
		c := chunks[sc.Position]
		hits[i] = Hit{Content: c.Text, ChunkIndex: c.Index, Score: sc.Score}
	}
	return hits
}
