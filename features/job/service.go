package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jurisense/backend/internal/config"
)

var (
	ErrUnknownHandler = errors.New("no retry topic for handler")
	ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")
	ErrRetryLimit     = errors.New("retry limit reached")
	ErrUploadGone     = errors.New("analysis upload no longer available")
)

const (
	// DefaultPublishTimeout bounds how long a retry waits on the broker.
	DefaultPublishTimeout = 5 * time.Second
	DefaultMaxRetries     = 3
)

var retryTopics = map[string]string{
	HandlerAnalysis: config.TopicAnalyzeTask,
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// UploadChecker reports whether a queued document is still on disk.
type UploadChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	uploads        UploadChecker
	logger         *slog.Logger
	publishTimeout time.Duration
	maxRetries     int
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:           repo,
		pub:            pub,
		logger:         logger,
		publishTimeout: DefaultPublishTimeout,
		maxRetries:     DefaultMaxRetries,
	}
}

// WithUploads makes Retry refuse analysis tasks whose upload is gone.
func (s *Service) WithUploads(u UploadChecker) *Service {
	s.uploads = u
	return s
}

// WithMaxRetries overrides DefaultMaxRetries. Zero disables the limit.
func (s *Service) WithMaxRetries(n int) *Service {
	s.maxRetries = n
	return s
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Record stores a failed task. The payload is kept verbatim so Retry can republish it.
func (s *Service) Record(ctx context.Context, j *Job) error {
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	s.logger.InfoContext(ctx, "saved failed job for retry", "job_id", j.ID, "handler", j.Handler, "task_id", j.TaskID)
	return nil
}

// Retry republishes a failed task to the topic of the handler that failed it and removes the record.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	topic, ok := retryTopics[j.Handler]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHandler, j.Handler)
	}
	if s.maxRetries > 0 && j.Retries >= s.maxRetries {
		return fmt.Errorf("%w: %d of %d", ErrRetryLimit, j.Retries, s.maxRetries)
	}
	if err := s.checkUpload(ctx, j); err != nil {
		return err
	}

	body, err := bumpRetries(j.Payload, j.Retries+1)
	if err != nil {
		return fmt.Errorf("invalid job payload: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(topic, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	}

	s.logger.InfoContext(ctx, "republished failed job", "job_id", id, "topic", topic, "retries", j.Retries+1)
	return s.repo.Delete(ctx, id)
}

// checkUpload fails fast when the document an analysis task points at was
// removed, since the worker would only fail it again while reading.
func (s *Service) checkUpload(ctx context.Context, j *Job) error {
	if s.uploads == nil || j.Handler != HandlerAnalysis {
		return nil
	}
	var task struct {
		UploadPath string `json:"upload_path"`
	}
	if err := json.Unmarshal(j.Payload, &task); err != nil {
		return fmt.Errorf("invalid job payload: %w", err)
	}
	if task.UploadPath == "" {
		return ErrUploadGone
	}
	ok, err := s.uploads.Exists(ctx, task.UploadPath)
	if err != nil {
		return fmt.Errorf("check upload: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUploadGone, task.UploadPath)
	}
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// bumpRetries stamps the retry count into the payload so the worker can carry it into a new failure record.
func bumpRetries(payload json.RawMessage, retries int) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	n, _ := json.Marshal(retries)
	fields["retries"] = n
	return json.Marshal(fields)
}
