// Package main runs the document service: the REST API, the MCP server,
// the background workers and the optional inbox watcher.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/docsearch/internal/api"
	"github.com/bull/docsearch/internal/app"
	"github.com/bull/docsearch/internal/config"
	mcpserver "github.com/bull/docsearch/internal/mcp"
	"github.com/bull/docsearch/internal/watch"
)

var version = "dev"

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Stdout carries the MCP protocol in stdio mode, so logs always go to stderr.
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	worker := a.NewWorker(ctx)
	defer worker.Close()

	errCh := make(chan error, 3)

	if cfg.WatchDir != "" {
		w := watch.New(cfg.WatchDir, a.Docs, worker, logger)
		go func() { errCh <- w.Run(ctx) }()
	}

	// REST API
	handler := api.NewDocumentHandler(a.Docs, worker, a.Provider, api.SearchDefaults{
		Limit:     cfg.SearchLimit,
		Threshold: cfg.SimilarityThreshold,
	}, logger)
	restApp := api.NewApp(handler, api.NewHealthHandler(a.Store, a.Provider.State), cfg.MaxFileSize, logger)
	rest := api.NewServer(restApp, cfg.HTTPAddr, logger)
	go func() { errCh <- rest.Run(ctx) }()

	// MCP server, health endpoint and landing page
	server := mcpserver.NewServer(&mcpserver.Config{
		Documents: a.Docs,
		Models:    a.Provider,
		Version:   version,
		Logger:    logger,
	})
	mux := mcpserver.NewMux(server, mcpserver.NewHealthHandler(a.Store, a.Provider.State), nil)
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting MCP HTTP server", "addr", httpServer.Addr, "mode", cfg.ServerMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode == "stdio" {
		// The client owns the process lifetime: when it disconnects we exit.
		go func() { errCh <- server.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
