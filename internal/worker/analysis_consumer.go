package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"jurisense/backend/features/job"
	"jurisense/backend/internal/config"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/pipeline"
)

// DefaultTouchInterval must stay below the consumer's NSQ MsgTimeout.
const DefaultTouchInterval = 30 * time.Second

// AnalysisConsumer handles analyze.task messages.
type AnalysisConsumer struct {
	analyzer      Analyzer
	uploads       UploadStore
	publisher     TaskPublisher
	failures      FailureRecorder
	touchInterval time.Duration
}

func NewAnalysisConsumer(a Analyzer, u UploadStore, p TaskPublisher, f FailureRecorder) *AnalysisConsumer {
	return &AnalysisConsumer{
		analyzer:      a,
		uploads:       u,
		publisher:     p,
		failures:      f,
		touchInterval: DefaultTouchInterval,
	}
}

// WithTouchInterval overrides DefaultTouchInterval.
func (h *AnalysisConsumer) WithTouchInterval(d time.Duration) *AnalysisConsumer {
	h.touchInterval = d
	return h
}

func (h *AnalysisConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload AnalyzeTaskPayload
	err := json.Unmarshal(m.Body, &payload)

	if payload.CorrelationID == "" {
		payload.CorrelationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), payload.CorrelationID)

	if err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.ErrorContext(ctx, "poison pill: invalid json", "error", err)
		return nil
	}

	if payload.JobID == "" || payload.UploadPath == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "job_id", payload.JobID, "upload_path", payload.UploadPath)
		return nil
	}
	ctx = middleware.WithRunID(ctx, payload.JobID)

	slog.InfoContext(ctx, "received analysis task", "file", payload.FileName, "retries", payload.Retries)

	data, err := h.uploads.Load(ctx, payload.UploadPath)
	if err != nil {
		err = &pipeline.StageError{Stage: pipeline.PhaseReading, Err: fmt.Errorf("load upload: %w", err)}
		return h.fail(ctx, m, payload, "", err)
	}

	file := extractor.File{Name: payload.FileName, ContentType: payload.ContentType, Data: data}
	docID := pipeline.DocumentID(data)

	stopTouch := h.keepAlive(m)
	defer stopTouch()
	analysis, err := h.analyzer.Analyze(ctx, file, payload.Options(), func(u pipeline.ProgressUpdate) {
		h.publishProgress(ctx, payload, u)
	})
	if err != nil {
		return h.fail(ctx, m, payload, docID, err)
	}

	result := ResultEvent{
		JobID:         payload.JobID,
		DocumentID:    docID,
		Status:        StatusCompleted,
		Analysis:      analysis,
		CorrelationID: payload.CorrelationID,
	}
	if err := h.publishResult(result); err != nil {
		slog.ErrorContext(ctx, "failed to publish analysis result", "error", err)
		return err // Durable: retry until the result is delivered
	}

	if err := h.uploads.Remove(ctx, payload.UploadPath); err != nil {
		slog.WarnContext(ctx, "failed to remove upload", "error", err, "path", payload.UploadPath)
	}
	slog.InfoContext(ctx, "analysis task completed", "doc_id", docID)
	return nil
}

// keepAlive touches m on a ticker so a single long stage does not let nsqd
// redeliver the task. The returned func stops the ticker and waits for it.
func (h *AnalysisConsumer) keepAlive(m *nsq.Message) func() {
	if m.Delegate == nil || h.touchInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(h.touchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Touch()
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// fail records the task as a failed job and reports it on analyze.result.
// The message is acked either way; retries go through the failed jobs API.
func (h *AnalysisConsumer) fail(ctx context.Context, m *nsq.Message, payload AnalyzeTaskPayload, docID string, cause error) error {
	slog.ErrorContext(ctx, "analysis task failed", "error", cause, "doc_id", docID)

	failed := &job.Job{
		TaskID:  payload.JobID,
		Handler: job.HandlerAnalysis,
		Payload: json.RawMessage(m.Body),
		Error:   cause.Error(),
		Retries: payload.Retries,
	}
	if err := h.failures.Record(ctx, failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
	}

	if err := h.publishResult(failedResult(payload, docID, cause)); err != nil {
		slog.ErrorContext(ctx, "failed to publish analysis failure", "error", err)
	}
	return nil
}

func (h *AnalysisConsumer) publishProgress(ctx context.Context, payload AnalyzeTaskPayload, u pipeline.ProgressUpdate) {
	body, err := json.Marshal(ProgressEvent{
		JobID:         payload.JobID,
		Phase:         u.Phase,
		Message:       u.Message,
		Percent:       u.Percent,
		CorrelationID: payload.CorrelationID,
	})
	if err != nil {
		return
	}
	if err := h.publisher.Publish(config.TopicAnalyzeProgress, body); err != nil {
		slog.WarnContext(ctx, "failed to publish progress", "error", err, "phase", u.Phase)
	}
}

func (h *AnalysisConsumer) publishResult(ev ResultEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return h.publisher.Publish(config.TopicAnalyzeResult, body)
}
