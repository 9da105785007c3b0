package pipeline

import (
	"context"
	"fmt"

	"jurisense/backend/internal/text"
)

const DefaultBatchSize = 8

// EmbedAll embeds segments in sequential batches of batchSize. The result
// has exactly one VectorChunk per segment or an error.
func EmbedAll(ctx context.Context, segments []text.Segment, batchSize int, embedder Embedder, onProgress ProgressFunc) ([]VectorChunk, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	total := len(segments)
	chunks := make([]VectorChunk, 0, total)
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+batchSize, total)
		batch := segments[start:end]
		texts := make([]string, len(batch))
		for i, seg := range batch {
			texts[i] = seg.Text
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ErrEmbeddingCountMismatch, len(batch), len(vectors))
		}

		for i, seg := range batch {
			chunks = append(chunks, VectorChunk{Text: seg.Text, Embedding: vectors[i], Index: seg.Index})
		}

		onProgress.emit(ProgressUpdate{
			Phase:   PhaseEmbedding,
			Message: fmt.Sprintf("Embedded %d of %d chunks", end, total),
			Percent: percent(end, total),
		})
	}
	return chunks, nil
}
