package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"jurisense/backend/internal/text"
)

// SummaryContextSize is how many passages feed the summary prompt for a
// document of n segments.
func SummaryContextSize(n int) int {
	return max(5, min(12, n/4))
}

// Summarize asks for a plain-language summary built from the longest
// segments of the document.
func Summarize(ctx context.Context, segments []text.Segment, generator Generator) (string, error) {
	return SummarizeWith(ctx, segments, nil, generator)
}

// SummarizeWith leads the summary context with the retrieved passages and
// fills the remaining slots with the longest segments.
func SummarizeWith(ctx context.Context, segments []text.Segment, retrieved []string, generator Generator) (string, error) {
	passages := SelectContext(segments, retrieved)
	if len(passages) == 0 {
		return "", nil
	}

	summary, err := generator.Generate(ctx, summarizationPrompt(passages))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// SelectContext returns at most SummaryContextSize(len(segments)) distinct
// passages: retrieved ones first in their given order, then segments by
// descending length.
func SelectContext(segments []text.Segment, retrieved []string) []string {
	limit := SummaryContextSize(len(segments))
	seen := make(map[string]bool, limit)
	passages := make([]string, 0, limit)

	add := func(p string) {
		if len(passages) >= limit || p == "" || seen[p] {
			return
		}
		seen[p] = true
		passages = append(passages, p)
	}

	for _, p := range retrieved {
		add(p)
	}

	longest := make([]text.Segment, len(segments))
	copy(longest, segments)
	sort.SliceStable(longest, func(i, j int) bool {
		return len([]rune(longest[i].Text)) > len([]rune(longest[j].Text))
	})
	for _, seg := range longest {
		add(seg.Text)
	}
	return passages
}
