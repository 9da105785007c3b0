package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jurisense/backend/internal/llmjson"
	"jurisense/backend/internal/pipeline"
)

// scriptedGenerator replies with responses in order and records prompts.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", nil
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

func TestExtractAll_AccumulatesEveryBatch(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"terms":[{"term":"Indemnity","explanation":"a"}]}`,
		"```json\n{\"terms\":[{\"term\":\"Lien\",\"explanation\":\"b\"}]}\n```",
		`{"terms":[{"term":"Escrow","explanation":"c"},]}`,
	}}

	items, err := pipeline.ExtractAll(context.Background(), segments(5), llmjson.KindTerms, 2, gen, nil)
	require.NoError(t, err)
	assert.Equal(t, []llmjson.Item{
		{Key: "Indemnity", Explanation: "a"},
		{Key: "Lien", Explanation: "b"},
		{Key: "Escrow", Explanation: "c"},
	}, items)

	require.Len(t, gen.prompts, 3)
	assert.Contains(t, gen.prompts[0], "segment 0")
	assert.Contains(t, gen.prompts[0], "segment 1")
	assert.NotContains(t, gen.prompts[0], "segment 2")
	assert.Contains(t, gen.prompts[2], "segment 4")
	assert.Contains(t, gen.prompts[0], `{"terms":[`)
}

func TestExtractAll_UndecodableBatchIsSkipped(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Sorry, I cannot help with that.",
		`{"clauses":[{"clause":"Termination","explanation":"notice"}]}`,
	}}

	items, err := pipeline.ExtractAll(context.Background(), segments(2), llmjson.KindClauses, 1, gen, nil)
	require.NoError(t, err)
	assert.Equal(t, []llmjson.Item{{Key: "Termination", Explanation: "notice"}}, items)
	assert.Contains(t, gen.prompts[0], `{"clauses":[`)
}

func TestExtractAll_GenerationErrorIsFatal(t *testing.T) {
	backendErr := errors.New("model not loaded")
	gen := &scriptedGenerator{err: backendErr}

	_, err := pipeline.ExtractAll(context.Background(), segments(3), llmjson.KindTerms, 8, gen, nil)
	assert.ErrorIs(t, err, backendErr)
}

func TestExtractAll_MonotonicProgress(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{"clauses":[]}`}}
	var updates []pipeline.ProgressUpdate

	_, err := pipeline.ExtractAll(context.Background(), segments(7), llmjson.KindClauses, 2, gen, func(u pipeline.ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.Len(t, updates, 4)

	last := -1
	for _, u := range updates {
		assert.Equal(t, pipeline.PhaseExtractingClauses, u.Phase)
		assert.Greater(t, *u.Percent, last)
		last = *u.Percent
	}
	assert.Equal(t, 100, last)
	assert.True(t, strings.Contains(updates[0].Message, "clauses"))
}
