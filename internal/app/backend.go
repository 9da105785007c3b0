package app

import (
	"context"
	"database/sql"
	"fmt"

	"jurisense/backend/internal/adapter/gemini"
	"jurisense/backend/internal/adapter/ollama"
	"jurisense/backend/internal/config"
	"jurisense/backend/internal/embedcache"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/settings"
)

// Backend is the inference pair the pipeline runs against.
type Backend struct {
	Provider      string
	Generator     pipeline.Generator
	Embedder      pipeline.Embedder
	GenerateModel string
	EmbedModel    string
}

// NewBackend builds the configured inference backend. The embedder is
// wrapped by the in-process LRU and, when db is set, the Postgres cache.
// Without a settings service the Gemini key comes from the configuration only.
func NewBackend(ctx context.Context, cfg *config.Config, settingsService *settings.Service, db *sql.DB) (*Backend, error) {
	var b Backend
	switch cfg.LLMProvider {
	case "", config.ProviderOllama:
		client := ollama.NewClient(cfg.OllamaBaseURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
		b = Backend{
			Provider:      config.ProviderOllama,
			Generator:     client,
			Embedder:      client,
			GenerateModel: client.GenerateModel(),
			EmbedModel:    client.EmbedModel(),
		}
	case config.ProviderGemini:
		var client interface {
			pipeline.Generator
			pipeline.Embedder
		}
		if settingsService != nil {
			client = gemini.NewDynamicClient(settingsService, cfg.GeminiAPIKey, cfg.GeminiGenModel, cfg.GeminiEmbedModel)
		} else {
			static, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiGenModel, cfg.GeminiEmbedModel)
			if err != nil {
				return nil, fmt.Errorf("gemini client: %w", err)
			}
			client = static
		}
		b = Backend{
			Provider:      config.ProviderGemini,
			Generator:     client,
			Embedder:      client,
			GenerateModel: cfg.GeminiGenModel,
			EmbedModel:    cfg.GeminiEmbedModel,
		}
	default:
		return nil, fmt.Errorf("%w: LLM_PROVIDER %q", config.ErrInvalid, cfg.LLMProvider)
	}

	b.Embedder = cachedEmbedder(cfg, b.Embedder, b.EmbedModel, db)
	return &b, nil
}

func cachedEmbedder(cfg *config.Config, next pipeline.Embedder, model string, db *sql.DB) pipeline.Embedder {
	if db != nil && cfg.EmbedCacheDB {
		next = embedcache.NewStore(next, embedcache.NewPostgresRepo(db), model)
	}
	if cfg.EmbedCacheSize > 0 {
		next = embedcache.NewLRU(next, model, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)
	}
	return next
}

// PipelineDefaults converts the configured pipeline settings to analyzer
// options. CHUNK_OVERLAP=0 turns overlap off rather than restoring the default.
func PipelineDefaults(cfg *config.Config) pipeline.Options {
	overlap := cfg.ChunkOverlap
	if overlap == 0 {
		overlap = pipeline.NoOverlap
	}
	return pipeline.Options{
		Timeout:          cfg.StageTimeout(),
		TopK:             cfg.RetrievalTopK,
		ChunkSize:        cfg.ChunkSize,
		Overlap:          overlap,
		EmbedBatchSize:   cfg.EmbedBatchSize,
		ExtractBatchSize: cfg.ExtractBatchSize,
	}.Merge(pipeline.DefaultOptions())
}
