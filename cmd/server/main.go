package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/llmwui/llm-wui/internal/api"
	"github.com/llmwui/llm-wui/internal/assets"
	"github.com/llmwui/llm-wui/internal/auth"
	"github.com/llmwui/llm-wui/internal/config"
	"github.com/llmwui/llm-wui/internal/core"
	"github.com/llmwui/llm-wui/internal/scratch"
	"github.com/llmwui/llm-wui/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Initialize database store
	repo, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer repo.Close()

	files, err := newScratchStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scratch storage: %w", err)
	}

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer closeEmbedder()

	manifest, err := assets.Load(cfg.ManifestPath, cfg.AssetURL)
	if err != nil {
		return fmt.Errorf("failed to load asset manifest: %w", err)
	}

	httpClient := &http.Client{}
	settings := core.NewSettingsService(repo)
	users := core.NewUserService(repo, auth.NewTokenIssuer(cfg.JWTSecret))
	chats := core.NewChatService(
		repo,
		settings,
		core.NewLLMService(httpClient, cfg.LLMTimeout, logger),
		core.NewWebSearcher(httpClient, cfg.SearchTimeout, logger),
		core.NewRetriever(embedder, cfg.RetrievalTimeout, logger),
		core.NewMerger(repo, logger),
		files,
		core.PipelineOptions{
			DefaultModel:          cfg.DefaultModel,
			ChunkSize:             cfg.Pipeline.ChunkSize,
			ChunkOverlap:          cfg.Pipeline.ChunkOverlap,
			TopK:                  cfg.Pipeline.TopK,
			SearchTopN:            cfg.Pipeline.SearchTopN,
			MaxDocumentChunks:     cfg.Pipeline.TopK,
			MaxRawAttachmentChars: cfg.Pipeline.MaxRawAttachmentChars,
		},
		logger,
	)

	apiHandler := api.NewAPIHandler(repo, users, chats, settings, files, manifest, logger)
	router := api.NewRouter(apiHandler, cfg.CORSOrigins)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second, // a send waits on the whole LLM stream
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", serverAddr, "database", dbKind(cfg), "scratch", cfg.ScratchBackend, "embedder", cfg.EmbedProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exiting gracefully")
	return nil
}

func newScratchStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scratch.Store, error) {
	if cfg.ScratchBackend == "s3" {
		return scratch.NewS3Store(ctx, scratch.S3Config{
			Region:    cfg.AwsRegion,
			AccessKey: cfg.AwsAccessKey,
			SecretKey: cfg.AwsSecretKey,
			Bucket:    cfg.BucketName,
		}, logger)
	}
	return scratch.NewLocalStore(cfg.ScratchDir)
}

func newEmbedder(ctx context.Context, cfg *config.Config) (core.Embedder, func(), error) {
	if cfg.EmbedProvider == "gemini" {
		e, err := core.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, err
		}
		return e, func() { e.Close() }, nil
	}
	return core.NewOllamaEmbedder(cfg.EmbedURL, cfg.EmbedModel, nil), func() {}, nil
}

func dbKind(cfg *config.Config) string {
	if cfg.IsPostgres() {
		return "postgres"
	}
	return "sqlite"
}
