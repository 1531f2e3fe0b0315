package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/similarity"
	"github.com/bull/docsearch/internal/storage"
)

// Documents is the document service behind the API.
type Documents interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (*storage.Document, error)
	Process(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64, includeChunks bool) (*storage.Document, []*storage.Chunk, error)
	List(ctx context.Context, opts storage.ListOptions) ([]*storage.Document, int, error)
	Search(ctx context.Context, query string, opts ingest.SearchOptions) ([]similarity.Result, error)
}

// Queue schedules background processing.
type Queue interface {
	Enqueue(id int64) error
}

// Models reports and reloads the embedding model.
type Models interface {
	Info(ctx context.Context) embedding.ModelInfo
	Reload(ctx context.Context, model string) embedding.State
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SearchDefaults are applied when a search request omits limit or threshold.
type SearchDefaults struct {
	Limit     int
	Threshold float64
}

// DocumentHandler serves the document, search and model endpoints.
type DocumentHandler struct {
	docs     Documents
	queue    Queue
	models   Models
	defaults SearchDefaults
	logger   *slog.Logger
}

// NewDocumentHandler creates a handler. queue may be nil, in which case uploads are processed inline.
func NewDocumentHandler(docs Documents, queue Queue, models Models, defaults SearchDefaults, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.Limit <= 0 {
		defaults.Limit = ingest.DefaultSearchLimit
	}
	return &DocumentHandler{docs: docs, queue: queue, models: models, defaults: defaults, logger: logger}
}

// HandleUpload stores a multipart "file" and schedules processing unless process_immediately=false.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest("multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := c.UserContext()
	doc, err := h.docs.Upload(ctx, ingest.UploadRequest{
		Filename: fh.Filename,
		Reader:   f,
		Size:     fh.Size,
		Owner:    c.Query("user_id"),
	})
	if err != nil {
		return err
	}

	if c.QueryBool("process_immediately", true) {
		h.schedule(ctx, doc.ID)
	}
	return c.Status(fiber.StatusCreated).JSON(newDocumentResponse(doc, nil))
}

func (h *DocumentHandler) schedule(ctx context.Context, id int64) {
	if h.queue == nil {
		if _, err := h.docs.Process(ctx, id); err != nil {
			h.logger.Warn("Inline processing failed", "document_id", id, "error", err)
		}
		return
	}
	if err := h.queue.Enqueue(id); err != nil {
		h.logger.Error("Failed to queue document", "document_id", id, "error", err)
	}
}

// HandleList returns a page of documents, newest first.
func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	q := ListQuery{Page: 1, Size: storage.DefaultListLimit}
	if err := c.QueryParser(&q); err != nil {
		return ErrBadRequest("invalid query parameters")
	}
	if err := validateStruct(&q); err != nil {
		return err
	}

	docs, total, err := h.docs.List(c.UserContext(), storage.ListOptions{
		Offset: (q.Page - 1) * q.Size,
		Limit:  q.Size,
		Owner:  q.UserID,
	})
	if err != nil {
		return err
	}

	items := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, newDocumentResponse(d, nil))
	}
	return c.JSON(ListResponse{Items: items, Total: total, Page: q.Page, Size: q.Size})
}

// HandleGet returns one document, with its chunks when include_chunks=true.
func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ErrInvalidID()
	}
	doc, chunks, err := h.docs.Get(c.UserContext(), int64(id), c.QueryBool("include_chunks", false))
	if err != nil {
		return err
	}
	return c.JSON(newDocumentResponse(doc, chunks))
}

// HandleDelete removes a document and answers 204, or 404 when it does not exist.
func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ErrInvalidID()
	}
	deleted, err := h.docs.Delete(c.UserContext(), int64(id))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound(id, "document")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleProcess runs processing synchronously and reports the chunk count.
func (h *DocumentHandler) HandleProcess(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ErrInvalidID()
	}
	n, err := h.docs.Process(c.UserContext(), int64(id))
	if err != nil {
		return err
	}
	return c.JSON(ProcessResponse{DocumentID: int64(id), Status: string(storage.StatusCompleted), ChunksCount: n})
}

// HandleSearch ranks stored chunks against the q parameter.
func (h *DocumentHandler) HandleSearch(c *fiber.Ctx) error {
	q := SearchQuery{Limit: h.defaults.Limit, Threshold: h.defaults.Threshold}
	if err := c.QueryParser(&q); err != nil {
		return ErrBadRequest("invalid query parameters")
	}
	if err := validateStruct(&q); err != nil {
		return err
	}

	results, err := h.docs.Search(c.UserContext(), q.Q, ingest.SearchOptions{
		Limit:     q.Limit,
		Threshold: ingest.Threshold(q.Threshold),
	})
	if err != nil {
		return err
	}
	return c.JSON(newSearchResults(results))
}

// HandleModelInfo reports the embedding model.
func (h *DocumentHandler) HandleModelInfo(c *fiber.Ctx) error {
	return c.JSON(h.models.Info(c.UserContext()))
}

// HandleModelReload reloads the embedding model, optionally switching to body.model.
func (h *DocumentHandler) HandleModelReload(c *fiber.Ctx) error {
	var req ReloadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return ErrBadRequest("invalid JSON request")
		}
	}
	if err := validateStruct(&req); err != nil {
		return err
	}
	ctx := c.UserContext()
	h.models.Reload(ctx, req.Model)
	return c.JSON(h.models.Info(ctx))
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Embedding string `json:"embedding"`
	Timestamp string `json:"timestamp"`
}

// NewHealthHandler checks database connectivity and reports the embedding state.
// Only the database decides the status code.
func NewHealthHandler(db Pinger, state func() embedding.State) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:    "healthy",
			Database:  "connected",
			Embedding: state().String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := db.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "disconnected"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		return c.JSON(resp)
	}
}
