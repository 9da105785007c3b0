package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// Phase is one sequential stage of an analysis run.
type Phase string

const (
	PhaseReading           Phase = "reading"
	PhaseChunking          Phase = "chunking"
	PhaseEmbedding         Phase = "embedding"
	PhaseRetrieving        Phase = "retrieving"
	PhaseExtractingTerms   Phase = "extracting_terms"
	PhaseExtractingClauses Phase = "extracting_clauses"
	PhaseSummarizing       Phase = "summarizing"
)

// ProgressUpdate is a fire-and-forget notification about a running analysis.
type ProgressUpdate struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
	Percent *int   `json:"percent,omitempty"`
}

// ProgressFunc receives progress updates. A nil ProgressFunc drops them.
type ProgressFunc func(ProgressUpdate)

func (f ProgressFunc) emit(u ProgressUpdate) {
	if f != nil {
		f(u)
	}
}

func percent(done, total int) *int {
	p := 100
	if total > 0 {
		p = int(math.Round(float64(done) / float64(total) * 100))
	}
	return &p
}

// Generator produces a complete text response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateFunc adapts a plain function to Generator.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EmbedFunc adapts a plain function to Embedder.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f EmbedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// VectorChunk pairs a segment with its embedding. Index is the segment's
// position in the source document.
type VectorChunk struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type ExtractedTerm struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

type ExtractedClause struct {
	Clause      string `json:"clause"`
	Explanation string `json:"explanation"`
}

// DocumentAnalysis is the result of a successful run. Terms and clauses are
// ordered by rank, not by discovery.
type DocumentAnalysis struct {
	Summary string            `json:"summary"`
	Terms   []ExtractedTerm   `json:"terms"`
	Clauses []ExtractedClause `json:"clauses"`
}

// DocumentID identifies a document by the sha256 of its bytes.
func DocumentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
