// Package api serves the document service over REST.
package api

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// bodyOverhead is added to the file size limit to leave room for multipart framing.
const bodyOverhead = 1 << 20

// NewApp builds the fiber app with every route registered.
func NewApp(h *DocumentHandler, health fiber.Handler, maxFileSize int64, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          NewErrorHandler(logger),
		BodyLimit:             bodyLimit(maxFileSize),
		DisableStartupMessage: true,
		Immutable:             true,
	})
	app.Use(recover.New())

	var (
		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)

	app.Get("/health", health)
	check.Get("/healthy", health)

	apiv1.Post("/documents", h.HandleUpload)
	apiv1.Get("/documents", h.HandleList)
	apiv1.Get("/documents/:id", h.HandleGet)
	apiv1.Delete("/documents/:id", h.HandleDelete)
	apiv1.Post("/documents/:id/process", h.HandleProcess)
	apiv1.Get("/search/documents", h.HandleSearch)
	apiv1.Get("/model", h.HandleModelInfo)
	apiv1.Post("/model/reload", h.HandleModelReload)

	return app
}

// bodyLimit adds the multipart overhead to maxFileSize, clamped to the int range.
func bodyLimit(maxFileSize int64) int {
	if maxFileSize < 0 || maxFileSize > math.MaxInt-bodyOverhead {
		return math.MaxInt
	}
	return int(maxFileSize) + bodyOverhead
}

// Server runs an app until its context is cancelled.
type Server struct {
	app        *fiber.App
	listenAddr string
	logger     *slog.Logger
}

// NewServer creates a server for app on addr.
func NewServer(app *fiber.App, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{app: app, listenAddr: addr, logger: logger}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.listenAddr)
		errCh <- s.app.Listen(s.listenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	if err := s.app.ShutdownWithContext(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
