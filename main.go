package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"jurisense/backend/internal/app"
	"jurisense/backend/internal/config"
	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/logger"
	"jurisense/backend/internal/pipeline"
	"jurisense/backend/internal/retrieval"
)

const analysisChannel = "analysis"

func main() {
	rootCmd := &cobra.Command{
		Use:   "jurisense",
		Short: "jurisense document analysis backend",
		RunE:  serve,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and analysis worker",
		RunE:  serve,
	}

	var topK int
	var timeout time.Duration
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "analyze a single document and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogger(os.Stderr)
			return analyzeFile(cmd.Context(), cfg, args[0], pipeline.Options{TopK: topK, Timeout: timeout})
		},
	}
	analyzeCmd.Flags().IntVar(&topK, "top-k", 0, "passages retrieved for the summary")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-stage timeout")

	rootCmd.AddCommand(serveCmd, analyzeCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(w *os.File) *slog.Logger {
	l := slog.New(logger.NewContextHandler(slog.NewJSONHandler(w, nil)))
	slog.SetDefault(l)
	return l
}

func serve(cmd *cobra.Command, _ []string) error {
	l := setupLogger(os.Stdout)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return run(cmd.Context(), cfg, l)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.Weaviate, deps.NSQProducer, logger, nil)
	if err != nil {
		return err
	}

	if cfg.EnableAnalysisWorker {
		nsqCfg := app.NewConsumerConfig(cfg)
		consumer, err := nsq.NewConsumer(config.TopicAnalyzeTask, analysisChannel, nsqCfg)
		if err != nil {
			return fmt.Errorf("nsq consumer error: %w", err)
		}
		concurrency := nsqCfg.MaxInFlight
		consumer.AddConcurrentHandlers(a.AnalysisConsumer, concurrency)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			consumer.Stop()
			return fmt.Errorf("failed to connect to NSQLookupd: %w", err)
		}
		defer consumer.Stop()
		logger.Info("analysis worker connected", "topic", config.TopicAnalyzeTask, "concurrency", concurrency)
	}

	if !cfg.EnableAPI {
		<-ctx.Done()
		return nil
	}
	return a.Run(ctx)
}

// analyzeFile runs the pipeline in-process without Postgres, NSQ or Weaviate.
func analyzeFile(ctx context.Context, cfg *config.Config, path string, overrides pipeline.Options) error {
	file, err := extractor.ReadFile(path)
	if err != nil {
		return err
	}

	backend, err := app.NewBackend(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	if p, ok := backend.Generator.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s backend unreachable: %w", backend.Provider, err)
		}
	}
	if c, ok := backend.Generator.(io.Closer); ok {
		defer c.Close()
	}
	retriever := retrieval.NewService(backend.Embedder, nil, nil, nil)
	analyzer := pipeline.NewAnalyzer(extractor.New(), backend.Embedder, backend.Generator, retriever, app.PipelineDefaults(cfg))

	progress := func(u pipeline.ProgressUpdate) {
		if u.Percent != nil {
			fmt.Fprintf(os.Stderr, "[%s] %s (%d%%)\n", u.Phase, u.Message, *u.Percent)
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", u.Phase, u.Message)
	}

	result, err := analyzer.AnalyzeDocument(ctx, file, progress, overrides)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
