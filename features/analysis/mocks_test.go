package analysis_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/settings"
)

type MockAnalyzer struct{ mock.Mock }

func (m *MockAnalyzer) AnalyzeDocument(ctx context.Context, file extractor.File, onProgress pipeline.ProgressFunc, opts pipeline.Options) (*pipeline.DocumentAnalysis, error) {
	args := m.Called(ctx, file, onProgress, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.DocumentAnalysis), args.Error(1)
}

type MockSettings struct{ mock.Mock }

func (m *MockSettings) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

type MockUploads struct{ mock.Mock }

func (m *MockUploads) Save(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
