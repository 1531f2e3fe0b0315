// Package app wires the document service together from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/docsearch/internal/chunker"
	"github.com/bull/docsearch/internal/config"
	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/enrich"
	"github.com/bull/docsearch/internal/extract"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
	"github.com/bull/docsearch/internal/storage/memory"
	"github.com/bull/docsearch/internal/storage/postgres"
	"github.com/bull/docsearch/internal/storage/sqlite"
	"github.com/bull/docsearch/internal/tokens"
)

// App holds the long-lived components shared by the servers and the CLI.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Store
	Provider *embedding.Provider
	Docs     *ingest.Orchestrator
}

// New opens the store and builds the ingestion pipeline.
// A missing embedding API key is not an error: the provider serves fallback vectors.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.NewSplitter(chunker.WithSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	if err != nil {
		store.Close()
		return nil, err
	}

	var counter *tokens.Counter
	if cfg.TokenCounts {
		counter, err = tokens.New(tokens.DefaultEncoding)
		if err != nil {
			logger.Warn("Token counting disabled", "error", err)
			counter = nil
		}
	}

	client, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
	})
	switch {
	case errors.Is(err, embedding.ErrNoCredentials):
		client = nil
	case err != nil:
		store.Close()
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	var backend embedding.Backend
	if client != nil && !cfg.SkipVectorModel {
		openaiCfg := embedding.OpenAIConfig{Model: cfg.VectorModel}
		if counter != nil {
			openaiCfg.Truncator = counter
		}
		backend = embedding.NewOpenAIBackend(client, openaiCfg)
	}
	provider := embedding.NewProvider(backend, embedding.Config{
		Dimension: cfg.EmbeddingDimension,
		Disabled:  cfg.SkipVectorModel,
	}, logger)

	var opts []ingest.Option
	if counter != nil {
		opts = append(opts, ingest.WithTokenCounter(counter))
	}
	if cfg.Summarize {
		if client == nil {
			logger.Warn("Summaries disabled: no API key or base URL configured")
		} else {
			summaryCfg := enrich.Config{Model: cfg.SummaryModel}
			if counter != nil {
				summaryCfg.Truncator = counter
			}
			opts = append(opts, ingest.WithSummarizer(enrich.NewSummarizer(client.Client(), summaryCfg, logger)))
		}
	}

	docs := ingest.New(store, extract.NewRegistry(), splitter, provider, ingest.Config{
		UploadDir:         cfg.UploadDir,
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: cfg.AllowedExtensions,
		Search: ingest.SearchOptions{
			Limit:     cfg.SearchLimit,
			Threshold: ingest.Threshold(cfg.SimilarityThreshold),
		},
	}, logger, opts...)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Provider: provider,
		Docs:     docs,
	}, nil
}

// OpenStore opens the store selected by cfg.DatabaseDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DatabaseDriver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// NewWorker starts the background processing pool.
func (a *App) NewWorker(ctx context.Context) *ingest.Worker {
	return ingest.NewWorker(ctx, a.Docs, a.Config.Workers, a.Config.Workers*16, a.Logger)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
