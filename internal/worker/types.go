package worker

import (
	"context"

	"jurisense/backend/features/job"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/pipeline"
)

// Analyzer runs one analysis with per-task option overrides.
type Analyzer interface {
	Analyze(ctx context.Context, file extractor.File, overrides pipeline.Options, onProgress pipeline.ProgressFunc) (*pipeline.DocumentAnalysis, error)
}

type UploadStore interface {
	Load(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type FailureRecorder interface {
	Record(ctx context.Context, j *job.Job) error
}
