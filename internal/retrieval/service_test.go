package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/retrieval"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Insert(ctx context.Context, runID, docID string, chunks []pipeline.VectorChunk) error {
	return m.Called(ctx, runID, docID, chunks).Error(0)
}

func (m *MockIndex) Search(ctx context.Context, runID string, vector []float32, limit int) ([]retrieval.Hit, error) {
	args := m.Called(ctx, runID, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.Hit), args.Error(1)
}

func (m *MockIndex) DeleteRun(ctx context.Context, runID string) error {
	return m.Called(ctx, runID).Error(0)
}

type MockReranker struct{ mock.Mock }

func (m *MockReranker) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	args := m.Called(ctx, query, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

var testChunks = []pipeline.VectorChunk{
	{Text: "payment", Embedding: []float32{0, 1}, Index: 0},
	{Text: "parties", Embedding: []float32{1, 0}, Index: 1},
	{Text: "notices", Embedding: []float32{0.7, 0.7}, Index: 2},
}

func TestService_Retrieve(t *testing.T) {
	queryVec := [][]float32{{1, 0}}

	tests := []struct {
		name       string
		topK       int
		withIndex  bool
		withRerank bool
		setup      func(*MockEmbedder, *MockIndex, *MockReranker)
		want       []string
		wantErr    bool
	}{
		{
			name: "memory scoring",
			topK: 2,
			setup: func(e *MockEmbedder, i *MockIndex, r *MockReranker) {
				e.On("Embed", mock.Anything, []string{pipeline.RetrievalQuery}).Return(queryVec, nil)
			},
			want: []string{"parties", "notices"},
		},
		{
			name:      "weaviate index",
			topK:      2,
			withIndex: true,
			setup: func(e *MockEmbedder, i *MockIndex, r *MockReranker) {
				e.On("Embed", mock.Anything, mock.Anything).Return(queryVec, nil)
				i.On("Insert", mock.Anything, mock.AnythingOfType("string"), "doc-1", testChunks).Return(nil)
				i.On("Search", mock.Anything, mock.AnythingOfType("string"), []float32{1, 0}, 2).
					Return([]retrieval.Hit{{Content: "parties", Score: 1}, {Content: "notices", Score: 0.7}}, nil)
				i.On("DeleteRun", mock.Anything, mock.AnythingOfType("string")).Return(nil)
			},
			want: []string{"parties", "notices"},
		},
		{
			name:       "reranked",
			topK:       3,
			withRerank: true,
			setup: func(e *MockEmbedder, i *MockIndex, r *MockReranker) {
				e.On("Embed", mock.Anything, mock.Anything).Return(queryVec, nil)
				r.On("Rerank", mock.Anything, pipeline.RetrievalQuery, []string{"parties", "notices", "payment"}).
					Return([]int{2, 0, 7, 0}, nil)
			},
			want: []string{"payment", "parties"},
		},
		{
			name:       "rerank failure keeps similarity order",
			topK:       2,
			withRerank: true,
			setup: func(e *MockEmbedder, i *MockIndex, r *MockReranker) {
				e.On("Embed", mock.Anything, mock.Anything).Return(queryVec, nil)
				r.On("Rerank", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("429"))
			},
			want: []string{"parties", "notices"},
		},
		{
			name: "embed error",
			topK: 2,
			setup: func(e *MockEmbedder, i *MockIndex, r *MockReranker) {
				e.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("down"))
			},
			wantErr: true,
		},
		{
			name:      "index error",
			topK:      2,
			withIndex: true,
			setup: func(e *MockEmbedder, i *MockIndex, r *MockReranker) {
				e.On("Embed", mock.Anything, mock.Anything).Return(queryVec, nil)
				i.On("Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("weaviate down"))
				i.On("DeleteRun", mock.Anything, mock.Anything).Return(nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, i, r := new(MockEmbedder), new(MockIndex), new(MockReranker)
			tt.setup(e, i, r)

			var idx retrieval.Index
			if tt.withIndex {
				idx = i
			}
			var rr retrieval.Reranker
			if tt.withRerank {
				rr = r
			}

			svc := retrieval.NewService(e, idx, rr, nil)
			got, err := svc.Retrieve(context.Background(), "doc-1", testChunks, tt.topK)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			e.AssertExpectations(t)
			i.AssertExpectations(t)
			r.AssertExpectations(t)
		})
	}
}

func TestService_Retrieve_NothingToDo(t *testing.T) {
	e := new(MockEmbedder)
	svc := retrieval.NewService(e, nil, nil, nil)

	got, err := svc.Retrieve(context.Background(), "doc", nil, 6)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = svc.Retrieve(context.Background(), "doc", testChunks, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	e.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestService_Retrieve_LogsQuery(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{1, 0}}, nil)

	var buf bytes.Buffer
	svc := retrieval.NewService(e, nil, nil, retrieval.NewQueryLogger(&buf))

	ctx := middleware.WithCorrelationID(context.Background(), "cid-7")
	ctx = middleware.WithRunID(ctx, "run-42")
	_, err := svc.Retrieve(ctx, "doc-9", testChunks, 2)
	require.NoError(t, err)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "doc-9", entry.DocID)
	assert.Equal(t, "run-42", entry.RunID)
	assert.Equal(t, "memory", entry.Index)
	assert.Equal(t, 2, entry.TopK)
	assert.Equal(t, 3, entry.NumChunks)
	assert.Equal(t, []int{1, 2}, entry.Chunks)
	assert.InDelta(t, 1.0, entry.BestScore, 1e-6)
	assert.Equal(t, "cid-7", entry.CorrelationID)
}

// recordingIndex keeps objects per run id like the Weaviate store does.
type recordingIndex struct {
	mu       sync.Mutex
	runs     map[string][]pipeline.VectorChunk
	inserted []string
	deleted  []string
	inSearch func()
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{runs: map[string][]pipeline.VectorChunk{}}
}

func (r *recordingIndex) Insert(ctx context.Context, runID, docID string, chunks []pipeline.VectorChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = chunks
	r.inserted = append(r.inserted, runID)
	return nil
}

func (r *recordingIndex) Search(ctx context.Context, runID string, vector []float32, limit int) ([]retrieval.Hit, error) {
	if r.inSearch != nil {
		r.inSearch()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []retrieval.Hit
	for _, c := range r.runs[runID] {
		hits = append(hits, retrieval.Hit{Content: c.Text, ChunkIndex: c.Index})
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *recordingIndex) DeleteRun(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
	r.deleted = append(r.deleted, runID)
	return nil
}

func TestService_Retrieve_IndexRunsAreIsolated(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{1, 0}}, nil)

	idx := newRecordingIndex()
	svc := retrieval.NewService(e, idx, nil, nil)

	// A second run on the same document starts and finishes while the
	// first one is between insert and search.
	var once sync.Once
	var nested []string
	idx.inSearch = func() {
		once.Do(func() {
			var err error
			nested, err = svc.Retrieve(context.Background(), "doc-1", testChunks[:1], 6)
			require.NoError(t, err)
		})
	}

	got, err := svc.Retrieve(context.Background(), "doc-1", testChunks, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"payment", "parties", "notices"}, got)
	assert.Equal(t, []string{"payment"}, nested)

	require.Len(t, idx.inserted, 2)
	assert.NotEqual(t, idx.inserted[0], idx.inserted[1])
	assert.ElementsMatch(t, idx.inserted, idx.deleted)
	assert.Empty(t, idx.runs)
}

func TestService_Retrieve_DeletesRunOnSearchError(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{1, 0}}, nil)

	var insertedRun string
	i := new(MockIndex)
	i.On("Insert", mock.Anything, mock.Anything, "doc-1", testChunks).
		Run(func(args mock.Arguments) { insertedRun = args.String(1) }).
		Return(nil)
	i.On("Search", mock.Anything, mock.Anything, mock.Anything, 2).Return(nil, errors.New("weaviate down"))
	i.On("DeleteRun", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := retrieval.NewService(e, i, nil, nil).Retrieve(ctx, "doc-1", testChunks, 2)
	assert.Error(t, err)
	require.NotEmpty(t, insertedRun)
	i.AssertCalled(t, "DeleteRun", mock.Anything, insertedRun)
}
