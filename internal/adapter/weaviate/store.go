package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/retrieval"
	"jurisense/backend/internal/vector"
)

// Store keeps chunk vectors in Weaviate. Objects are partitioned by the
// retrieval run that wrote them, so concurrent analyses of the same
// document never see each other's vectors.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// Insert writes a run's chunks in one batch, tagged with the run and the
// document hash.
func (s *Store) Insert(ctx context.Context, runID, docID string, chunks []pipeline.VectorChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"runId":      runID,
				"docId":      docID,
				"content":    c.Text,
				"chunkIndex": c.Index,
			},
			Vector: c.Embedding,
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// DeleteRun removes every object written by runID.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(runFilter(runID)).
		Do(ctx)
	return err
}

// Search returns the limit nearest chunks written by runID. Score is the
// cosine similarity, 1 - distance.
func (s *Store) Search(ctx context.Context, runID string, vec []float32, limit int) ([]retrieval.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(runFilter(runID)).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	hits := []retrieval.Hit{}
	data, _ := res.Data["Get"].(map[string]interface{})
	objects, _ := data[vector.ClassName].([]interface{})
	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		hit := retrieval.Hit{}
		if content, ok := props["content"].(string); ok {
			hit.Content = content
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			hit.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			hit.Score = 1 - number(additional["distance"])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func runFilter(runID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"runId"}).
		WithOperator(filters.Equal).
		WithValueString(runID)
}

// number reads a GraphQL additional value that may arrive as a number or
// a string depending on the server version.
func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}
