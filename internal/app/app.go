package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"jurisense/backend/features/analysis"
	"jurisense/backend/features/job"
	"jurisense/backend/features/stats"
	"jurisense/backend/internal/adapter/reranker"
	wstore "jurisense/backend/internal/adapter/weaviate"
	"jurisense/backend/internal/config"
	"jurisense/backend/internal/embedcache"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/retrieval"
	"jurisense/backend/internal/settings"
	"jurisense/backend/internal/upload"
	"jurisense/backend/internal/worker"
)

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// Options replaces parts of the wiring, mainly for tests.
type Options struct {
	Generator pipeline.Generator
	Embedder  pipeline.Embedder
}

type App struct {
	Handler          http.Handler
	Analyzer         *pipeline.Analyzer
	AnalysisService  *analysis.Service
	AnalysisConsumer *worker.AnalysisConsumer
	Backend          *Backend

	port int
}

// New wires the HTTP API and the analysis worker. wClient may be nil when
// the in-memory index is configured.
func New(
	cfg *config.Config,
	db *sql.DB,
	wClient *weaviate.Client,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	seedSettings(settingsService, cfg)
	settingsHandler := settings.NewHandler(settingsService)

	// Inference
	backend, err := NewBackend(context.Background(), cfg, settingsService, db)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.Generator != nil {
		backend.Generator = opts.Generator
	}
	if opts != nil && opts.Embedder != nil {
		backend.Embedder = opts.Embedder
	}

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	var index retrieval.Index
	if cfg.VectorIndex == config.IndexWeaviate && wClient != nil {
		index = wstore.NewStore(wClient)
	}
	retrievalService := retrieval.NewService(backend.Embedder, index, reranker.NewDynamicClient(settingsService), queryLogger)

	analyzer := pipeline.NewAnalyzer(extractor.New(), backend.Embedder, backend.Generator, retrievalService, PipelineDefaults(cfg))

	uploads := upload.NewStore(cfg.UploadDir)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, logger).WithUploads(uploads)
	jobHandler := job.NewHandler(jobService)

	// Feature: Analysis
	analysisService := analysis.NewService(analyzer, settingsService, PipelineDefaults(cfg), uploads, taskPub)
	analysisHandler := analysis.NewHandler(analysisService, cfg.MaxUploadSizeMB<<20)

	statsHandler := stats.NewHandler(jobRepo, embedcache.NewPostgresRepo(db))

	consumer := worker.NewAnalysisConsumer(analysisService, uploads, taskPub, jobService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /analyses", middleware.CorrelationID(enableCORS(analysisHandler.Analyze)))
	mux.Handle("POST /analyses/jobs", middleware.CorrelationID(enableCORS(analysisHandler.Enqueue)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", healthHandler(backend))

	return &App{
		Handler:          mux,
		Analyzer:         analyzer,
		AnalysisService:  analysisService,
		AnalysisConsumer: consumer,
		Backend:          backend,
		port:             cfg.ServerPort,
	}, nil
}

// seedSettings copies environment secrets into empty persisted settings.
func seedSettings(svc *settings.Service, cfg *config.Config) {
	if cfg.GeminiAPIKey == "" && cfg.RerankAPIKey == "" {
		return
	}
	ctx := context.Background()
	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}

	changed := false
	if set.GeminiAPIKey == "" && cfg.GeminiAPIKey != "" {
		set.GeminiAPIKey = cfg.GeminiAPIKey
		changed = true
	}
	if set.RerankAPIKey == "" && cfg.RerankAPIKey != "" {
		set.RerankAPIKey = cfg.RerankAPIKey
		changed = true
	}
	if !changed {
		return
	}
	if err := svc.Update(ctx, set); err != nil {
		slog.Warn("failed to seed settings", "error", err)
		return
	}
	slog.Info("seeded api keys from environment")
}

func healthHandler(b *Backend) http.HandlerFunc {
	body, _ := json.Marshal(map[string]string{
		"status":    "ok",
		"provider":  b.Provider,
		"generator": b.GenerateModel,
		"embedder":  b.EmbedModel,
	})
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func (a *App) Run(ctx context.Context) error {
	port := a.port
	if port == 0 {
		port = 8081
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
