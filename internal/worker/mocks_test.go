package worker_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
	"jurisense/backend/features/job"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/pipeline"
)

type MockAnalyzer struct{ mock.Mock }

func (m *MockAnalyzer) Analyze(ctx context.Context, file extractor.File, overrides pipeline.Options, onProgress pipeline.ProgressFunc) (*pipeline.DocumentAnalysis, error) {
	args := m.Called(ctx, file, overrides, onProgress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.DocumentAnalysis), args.Error(1)
}

type MockUploadStore struct{ mock.Mock }

func (m *MockUploadStore) Load(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockUploadStore) Remove(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

type MockFailureRecorder struct{ mock.Mock }

func (m *MockFailureRecorder) Record(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

// capturePublisher records every publish per topic.
type capturePublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	failOn   map[string]error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{messages: map[string][][]byte{}, failOn: map[string]error{}}
}

func (p *capturePublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[topic]; err != nil {
		return err
	}
	p.messages[topic] = append(p.messages[topic], body)
	return nil
}

func (p *capturePublisher) bodies(topic string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[topic]
}

func decode[T any](body []byte) T {
	var v T
	_ = json.Unmarshal(body, &v)
	return v
}
