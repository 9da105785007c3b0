package pipeline

import (
	"context"
	"fmt"

	"jurisense/backend/internal/vector"
)

const (
	DefaultTopK = 6

	// RetrievalQuery selects the passages handed to the summarizer.
	RetrievalQuery = "Summarize this legal document and explain its key terms, clauses, parties and obligations."
)

// Retriever picks the passages of a document most relevant to summarizing it.
type Retriever interface {
	Retrieve(ctx context.Context, docID string, chunks []VectorChunk, topK int) ([]string, error)
}

// RetrieveTop embeds query and returns the texts of the topK chunks with the
// highest cosine similarity, best first. Equal scores keep chunk order.
func RetrieveTop(ctx context.Context, chunks []VectorChunk, query string, topK int, embedder Embedder) ([]string, error) {
	if len(chunks) == 0 || topK == 0 {
		return []string{}, nil
	}
	if topK < 0 {
		topK = DefaultTopK
	}

	queryVec, err := EmbedQuery(ctx, query, embedder)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(chunks))
	for i, c := range chunks {
		embeddings[i] = c.Embedding
	}

	scored := vector.TopK(queryVec, embeddings, topK)
	texts := make([]string, len(scored))
	for i, s := range scored {
		texts[i] = chunks[s.Position].Text
	}
	return texts, nil
}

// EmbedQuery embeds a single text and enforces the one-vector contract.
func EmbedQuery(ctx context.Context, query string, embedder Embedder) ([]float32, error) {
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed retrieval query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: sent 1 text, got %d vectors", ErrEmbeddingCountMismatch, len(vectors))
	}
	return vectors[0], nil
}

// MemoryRetriever scores chunks in process with RetrieveTop.
type MemoryRetriever struct {
	embedder Embedder
	query    string
}

func NewMemoryRetriever(embedder Embedder) *MemoryRetriever {
	return &MemoryRetriever{embedder: embedder, query: RetrievalQuery}
}

func (r *MemoryRetriever) Retrieve(ctx context.Context, docID string, chunks []VectorChunk, topK int) ([]string, error) {
	return RetrieveTop(ctx, chunks, r.query, topK, r.embedder)
}
