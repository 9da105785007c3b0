package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

// ErrInvalid reports a configuration value outside its allowed set or range.
var ErrInvalid = errors.New("invalid configuration")

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	IndexMemory   = "memory"
	IndexWeaviate = "weaviate"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"jurisense"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"jurisense"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI            bool   `envconfig:"ENABLE_API" default:"true"`
	EnableAnalysisWorker bool   `envconfig:"ENABLE_ANALYSIS_WORKER" default:"true"`
	WorkerConcurrency    int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	MigrationPath        string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Inference
	LLMProvider      string `envconfig:"LLM_PROVIDER" default:"ollama"`
	OllamaBaseURL    string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaGenModel   string `envconfig:"OLLAMA_GEN_MODEL" default:"llama3.2:latest"`
	OllamaEmbedModel string `envconfig:"OLLAMA_EMBED_MODEL" default:"nomic-embed-text"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiGenModel   string `envconfig:"GEMINI_GEN_MODEL" default:"gemini-2.0-flash"`
	GeminiEmbedModel string `envconfig:"GEMINI_EMBED_MODEL" default:"gemini-embedding-001"`
	RerankAPIKey     string `envconfig:"RERANK_API_KEY"`

	// Pipeline
	VectorIndex      string `envconfig:"VECTOR_INDEX" default:"memory"`
	ChunkSize        int    `envconfig:"CHUNK_SIZE" default:"2000"`
	ChunkOverlap     int    `envconfig:"CHUNK_OVERLAP" default:"250"`
	EmbedBatchSize   int    `envconfig:"EMBED_BATCH_SIZE" default:"8"`
	ExtractBatchSize int    `envconfig:"EXTRACT_BATCH_SIZE" default:"8"`
	RetrievalTopK    int    `envconfig:"RETRIEVAL_TOP_K" default:"6"`
	StageTimeoutMs   int    `envconfig:"STAGE_TIMEOUT_MS" default:"120000"`

	// Embedding cache
	EmbedCacheSize int           `envconfig:"EMBED_CACHE_SIZE" default:"4096"`
	EmbedCacheTTL  time.Duration `envconfig:"EMBED_CACHE_TTL" default:"1h"`
	EmbedCacheDB   bool          `envconfig:"EMBED_CACHE_DB" default:"true"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	switch c.LLMProvider {
	case "", ProviderOllama:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: LLM_PROVIDER %q", ErrInvalid, c.LLMProvider)
	}
	switch c.VectorIndex {
	case "", IndexMemory, IndexWeaviate:
	default:
		return fmt.Errorf("%w: VECTOR_INDEX %q", ErrInvalid, c.VectorIndex)
	}
	if c.ChunkSize < 0 || c.ChunkOverlap < 0 || (c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize) {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be smaller than CHUNK_SIZE", ErrInvalid)
	}
	return nil
}

// StageTimeout returns the configured per-stage timeout, zero when unset.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMs) * time.Millisecond
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
