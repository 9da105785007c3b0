package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"jurisense/backend/internal/config"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/settings"
	"jurisense/backend/internal/worker"
)

type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, file extractor.File, onProgress pipeline.ProgressFunc, opts pipeline.Options) (*pipeline.DocumentAnalysis, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type UploadSaver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Service resolves per-run options and runs analyses inline or through the queue.
type Service struct {
	analyzer DocumentAnalyzer
	settings SettingsProvider
	defaults pipeline.Options
	uploads  UploadSaver
	pub      EventPublisher
}

func NewService(a DocumentAnalyzer, s SettingsProvider, defaults pipeline.Options, u UploadSaver, p EventPublisher) *Service {
	return &Service{
		analyzer: a,
		settings: s,
		defaults: defaults.Merge(pipeline.DefaultOptions()),
		uploads:  u,
		pub:      p,
	}
}

// Options layers request overrides over persisted settings over configured defaults.
func (s *Service) Options(ctx context.Context, overrides pipeline.Options) pipeline.Options {
	var stored pipeline.Options
	if s.settings != nil {
		set, err := s.settings.Get(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to load settings, using configured defaults", "error", err)
		} else if set != nil {
			stored.TopK = set.RetrievalTopK
			stored.Timeout = time.Duration(set.StageTimeoutMs) * time.Millisecond
		}
	}
	return overrides.Merge(stored).Merge(s.defaults)
}

// Analyze runs the pipeline in the caller's goroutine.
func (s *Service) Analyze(ctx context.Context, file extractor.File, overrides pipeline.Options, onProgress pipeline.ProgressFunc) (*pipeline.DocumentAnalysis, error) {
	return s.analyzer.AnalyzeDocument(ctx, file, onProgress, s.Options(ctx, overrides))
}

// Enqueue stores the upload and publishes an analyze.task message. It returns the job id.
func (s *Service) Enqueue(ctx context.Context, file extractor.File, overrides pipeline.Options) (string, error) {
	path, err := s.uploads.Save(ctx, file.Name, file.Data)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	jobID := uuid.New().String()
	payload := worker.AnalyzeTaskPayload{
		JobID:       jobID,
		UploadPath:  path,
		FileName:    file.Name,
		ContentType: file.ContentType,
		TopK:        overrides.TopK,
		TimeoutMs:   int(overrides.Timeout / time.Millisecond),
	}
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		payload.CorrelationID = id
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if err := s.pub.Publish(config.TopicAnalyzeTask, body); err != nil {
		return "", fmt.Errorf("publish task: %w", err)
	}

	slog.InfoContext(ctx, "analysis queued", "job_id", jobID, "file", file.Name)
	return jobID, nil
}
