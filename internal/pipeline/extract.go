package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"jurisense/backend/internal/llmjson"
	"jurisense/backend/internal/text"
)

// ExtractAll prompts the generator once per sequential batch of segments
// and accumulates the decoded items of every batch. A batch whose response
// cannot be decoded contributes nothing; a generation error is fatal.
func ExtractAll(ctx context.Context, segments []text.Segment, kind llmjson.Kind, batchSize int, generator Generator, onProgress ProgressFunc) ([]llmjson.Item, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	phase := PhaseExtractingTerms
	if kind == llmjson.KindClauses {
		phase = PhaseExtractingClauses
	}

	total := len(segments)
	var items []llmjson.Item
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+batchSize, total)
		passages := make([]string, 0, end-start)
		for _, seg := range segments[start:end] {
			passages = append(passages, seg.Text)
		}

		raw, err := generator.Generate(ctx, extractionPrompt(kind, passages))
		if err != nil {
			return nil, fmt.Errorf("extract %s from chunks %d-%d: %w", kind, start, end-1, err)
		}

		res := llmjson.Decode(kind, raw)
		if !res.Ok() {
			slog.WarnContext(ctx, "model response not decodable", "kind", kind, "first_chunk", start, "response_len", len(raw))
		} else {
			slog.DebugContext(ctx, "model response decoded", "kind", kind, "strategy", res.Strategy.String(), "items", len(res.Items))
		}
		items = append(items, res.Items...)

		onProgress.emit(ProgressUpdate{
			Phase:   phase,
			Message: fmt.Sprintf("Analyzed %d of %d chunks for %s", end, total, kind),
			Percent: percent(end, total),
		})
	}
	return items, nil
}

func toTerms(items []llmjson.Item) []ExtractedTerm {
	terms := make([]ExtractedTerm, len(items))
	for i, it := range items {
		terms[i] = ExtractedTerm{Term: it.Key, Explanation: it.Explanation}
	}
	return terms
}

func toClauses(items []llmjson.Item) []ExtractedClause {
	clauses := make([]ExtractedClause, len(items))
	for i, it := range items {
		clauses[i] = ExtractedClause{Clause: it.Key, Explanation: it.Explanation}
	}
	return clauses
}
