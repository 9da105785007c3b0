package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/llmjson"
	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/text"
)

const DefaultTimeout = 120 * time.Second

// NoOverlap asks for adjacent chunks that share no text. A zero Overlap
// means "use the default" like every other Options field.
const NoOverlap = -1

// Options tune one analysis run. Zero values fall back to the analyzer's
// defaults.
type Options struct {
	Timeout          time.Duration
	TopK             int
	ChunkSize        int
	Overlap          int
	EmbedBatchSize   int
	ExtractBatchSize int
}

func DefaultOptions() Options {
	return Options{
		Timeout:          DefaultTimeout,
		TopK:             DefaultTopK,
		ChunkSize:        text.DefaultChunkSize,
		Overlap:          text.DefaultOverlap,
		EmbedBatchSize:   DefaultBatchSize,
		ExtractBatchSize: DefaultBatchSize,
	}
}

// Merge fills the zero fields of o from fallback. A negative Overlap is an
// explicit request for none and is kept.
func (o Options) Merge(fallback Options) Options {
	if o.Timeout <= 0 {
		o.Timeout = fallback.Timeout
	}
	if o.TopK <= 0 {
		o.TopK = fallback.TopK
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = fallback.ChunkSize
	}
	if o.Overlap == 0 {
		o.Overlap = fallback.Overlap
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = fallback.EmbedBatchSize
	}
	if o.ExtractBatchSize <= 0 {
		o.ExtractBatchSize = fallback.ExtractBatchSize
	}
	return o
}

// TextExtractor reads the text out of an uploaded file.
type TextExtractor interface {
	Extract(ctx context.Context, file extractor.File) (string, error)
}

// Analyzer runs the staged analysis. It holds no per-run state, so one
// Analyzer serves concurrent runs.
type Analyzer struct {
	reader    TextExtractor
	embedder  Embedder
	generator Generator
	retriever Retriever
	defaults  Options
}

// NewAnalyzer wires the pipeline collaborators. A nil retriever scores
// chunks in memory.
func NewAnalyzer(reader TextExtractor, embedder Embedder, generator Generator, retriever Retriever, defaults Options) *Analyzer {
	if retriever == nil {
		retriever = NewMemoryRetriever(embedder)
	}
	return &Analyzer{
		reader:    reader,
		embedder:  embedder,
		generator: generator,
		retriever: retriever,
		defaults:  defaults.Merge(DefaultOptions()),
	}
}

// AnalyzeDocument reads, chunks, embeds, retrieves, extracts and summarizes
// file. Stages run strictly in order and each one is bounded by
// opts.Timeout. Every returned error is a *StageError.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, file extractor.File, onProgress ProgressFunc, opts Options) (*DocumentAnalysis, error) {
	opts = opts.Merge(a.defaults)
	progress := &progressGate{fn: onProgress}
	defer progress.close()

	if middleware.GetRunID(ctx) == "" {
		ctx = middleware.WithRunID(ctx, uuid.New().String())
	}
	docID := DocumentID(file.Data)
	start := time.Now()
	slog.InfoContext(ctx, "analysis started", "doc_id", docID, "file", file.Name, "bytes", len(file.Data))

	analysis, err := a.run(ctx, docID, file, progress.emit, opts)
	if err != nil {
		slog.ErrorContext(ctx, "analysis failed", "doc_id", docID, "error", err, "duration", time.Since(start))
		return nil, err
	}

	slog.InfoContext(ctx, "analysis completed",
		"doc_id", docID,
		"terms", len(analysis.Terms),
		"clauses", len(analysis.Clauses),
		"duration", time.Since(start))
	return analysis, nil
}

func (a *Analyzer) run(ctx context.Context, docID string, file extractor.File, emit ProgressFunc, opts Options) (*DocumentAnalysis, error) {
	raw, err := runStage(ctx, PhaseReading, opts.Timeout, func(ctx context.Context) (string, error) {
		emit(ProgressUpdate{Phase: PhaseReading, Message: fmt.Sprintf("Reading %s", file.Name)})
		return a.reader.Extract(ctx, file)
	})
	if err != nil {
		return nil, err
	}

	segments, err := runStage(ctx, PhaseChunking, opts.Timeout, func(ctx context.Context) ([]text.Segment, error) {
		emit(ProgressUpdate{Phase: PhaseChunking, Message: "Splitting document into chunks"})
		segments := text.Chunk(raw, opts.ChunkSize, max(opts.Overlap, 0))
		if len(segments) == 0 {
			return nil, extractor.ErrEmptyDocument
		}
		return segments, nil
	})
	if err != nil {
		return nil, err
	}

	chunks, err := runStage(ctx, PhaseEmbedding, opts.Timeout, func(ctx context.Context) ([]VectorChunk, error) {
		emit(ProgressUpdate{Phase: PhaseEmbedding, Message: fmt.Sprintf("Embedding %d chunks", len(segments)), Percent: percent(0, len(segments))})
		return EmbedAll(ctx, segments, opts.EmbedBatchSize, a.embedder, emit)
	})
	if err != nil {
		return nil, err
	}

	retrieved, err := runStage(ctx, PhaseRetrieving, opts.Timeout, func(ctx context.Context) ([]string, error) {
		emit(ProgressUpdate{Phase: PhaseRetrieving, Message: "Finding the most relevant passages"})
		return a.retriever.Retrieve(ctx, docID, chunks, opts.TopK)
	})
	if err != nil {
		return nil, err
	}

	terms, err := runStage(ctx, PhaseExtractingTerms, opts.Timeout, func(ctx context.Context) ([]llmjson.Item, error) {
		emit(ProgressUpdate{Phase: PhaseExtractingTerms, Message: "Extracting key terms", Percent: percent(0, len(segments))})
		return ExtractAll(ctx, segments, llmjson.KindTerms, opts.ExtractBatchSize, a.generator, emit)
	})
	if err != nil {
		return nil, err
	}

	clauses, err := runStage(ctx, PhaseExtractingClauses, opts.Timeout, func(ctx context.Context) ([]llmjson.Item, error) {
		emit(ProgressUpdate{Phase: PhaseExtractingClauses, Message: "Extracting important clauses", Percent: percent(0, len(segments))})
		return ExtractAll(ctx, segments, llmjson.KindClauses, opts.ExtractBatchSize, a.generator, emit)
	})
	if err != nil {
		return nil, err
	}

	summary, err := runStage(ctx, PhaseSummarizing, opts.Timeout, func(ctx context.Context) (string, error) {
		emit(ProgressUpdate{Phase: PhaseSummarizing, Message: "Writing the summary"})
		summary, err := SummarizeWith(ctx, segments, retrieved, a.generator)
		if err != nil {
			return "", err
		}
		emit(ProgressUpdate{Phase: PhaseSummarizing, Message: "Analysis complete", Percent: percent(1, 1)})
		return summary, nil
	})
	if err != nil {
		return nil, err
	}

	return &DocumentAnalysis{
		Summary: summary,
		Terms:   Rank(toTerms(terms), termKey),
		Clauses: Rank(toClauses(clauses), clauseKey),
	}, nil
}

// runStage races fn against timeout. On expiry the stage fails at once and
// fn's context is cancelled, even though fn may still be running.
func runStage[T any](ctx context.Context, stage Phase, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, &StageError{Stage: stage, Err: err}
	}

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(stageCtx)
		done <- outcome{val: val, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return zero, &StageError{Stage: stage, Err: out.err}
		}
		return out.val, nil
	case <-timer.C:
		return zero, &StageError{Stage: stage, Timeout: true, Err: ErrStageTimeout}
	case <-ctx.Done():
		return zero, &StageError{Stage: stage, Err: ctx.Err()}
	}
}

// progressGate serializes progress callbacks and silences stages that are
// still running after the analysis has returned.
type progressGate struct {
	mu     sync.Mutex
	fn     ProgressFunc
	closed bool
}

func (g *progressGate) emit(u ProgressUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.fn.emit(u)
}

func (g *progressGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
