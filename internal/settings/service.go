package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid settings")

// Settings are the operator-tunable pipeline knobs stored in the database.
// Zero numeric values mean "use the server configuration".
type Settings struct {
	ID             int    `json:"-"`
	RerankProvider string `json:"rerank_provider"`
	RerankAPIKey   string `json:"rerank_api_key"`
	GeminiAPIKey   string `json:"gemini_api_key"`
	RetrievalTopK  int    `json:"retrieval_top_k"`
	StageTimeoutMs int    `json:"stage_timeout_ms"`
}

var rerankProviders = map[string]bool{
	"":       true,
	"none":   true,
	"jina":   true,
	"cohere": true,
}

// Validate rejects values the pipeline cannot run with.
func (s *Settings) Validate() error {
	if !rerankProviders[s.RerankProvider] {
		return fmt.Errorf("%w: unknown rerank_provider %q", ErrInvalid, s.RerankProvider)
	}
	if s.RetrievalTopK < 0 {
		return fmt.Errorf("%w: retrieval_top_k must not be negative", ErrInvalid)
	}
	if s.StageTimeoutMs < 0 {
		return fmt.Errorf("%w: stage_timeout_ms must not be negative", ErrInvalid)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}
