package worker

import (
	"errors"
	"time"

	"jurisense/backend/internal/pipeline"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalyzeTaskPayload is the body of an analyze.task message.
type AnalyzeTaskPayload struct {
	JobID         string `json:"job_id"`
	UploadPath    string `json:"upload_path"`
	FileName      string `json:"file_name"`
	ContentType   string `json:"content_type,omitempty"`
	TopK          int    `json:"top_k,omitempty"`
	TimeoutMs     int    `json:"timeout_ms,omitempty"`
	Retries       int    `json:"retries,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Options returns the per-request overrides carried by the task.
func (p AnalyzeTaskPayload) Options() pipeline.Options {
	return pipeline.Options{
		TopK:    p.TopK,
		Timeout: time.Duration(p.TimeoutMs) * time.Millisecond,
	}
}

// ProgressEvent is published to analyze.progress for every pipeline update.
type ProgressEvent struct {
	JobID         string         `json:"job_id"`
	Phase         pipeline.Phase `json:"phase"`
	Message       string         `json:"message"`
	Percent       *int           `json:"percent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// ResultEvent is published to analyze.result once per task.
type ResultEvent struct {
	JobID         string                     `json:"job_id"`
	DocumentID    string                     `json:"document_id,omitempty"`
	Status        string                     `json:"status"`
	Analysis      *pipeline.DocumentAnalysis `json:"analysis,omitempty"`
	Stage         pipeline.Phase             `json:"stage,omitempty"`
	Timeout       bool                       `json:"timeout,omitempty"`
	Error         string                     `json:"error,omitempty"`
	CorrelationID string                     `json:"correlation_id,omitempty"`
}

func failedResult(p AnalyzeTaskPayload, docID string, err error) ResultEvent {
	ev := ResultEvent{
		JobID:         p.JobID,
		DocumentID:    docID,
		Status:        StatusFailed,
		Error:         err.Error(),
		CorrelationID: p.CorrelationID,
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		ev.Stage = stageErr.Stage
		ev.Timeout = stageErr.Timeout
	}
	return ev
}
