// Package ingest moves uploaded documents through extraction, chunking,
// embedding and storage, and answers similarity queries over the result.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docsearch/internal/chunker"
	"github.com/bull/docsearch/internal/enrich"
	"github.com/bull/docsearch/internal/extract"
	"github.com/bull/docsearch/internal/similarity"
	"github.com/bull/docsearch/internal/storage"
)

// Defaults match the service configuration defaults.
const (
	DefaultSearchLimit     = 5
	DefaultThreshold       = 0.7
	DefaultMaxFileSize     = 10 << 20
	DefaultUploadDirectory = "uploads"
)

// DefaultAllowedExtensions are the file types accepted by Upload.
var DefaultAllowedExtensions = []string{".pdf", ".txt", ".md", ".docx", ".doc"}

// Extractor turns a stored file into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// Embedder produces chunk and query vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// TokenCounter reports token counts stored in chunk metadata.
type TokenCounter interface {
	Count(text string) int
}

// Summarizer describes a completed document.
type Summarizer interface {
	Summarize(ctx context.Context, filename, content string) (*enrich.Summary, error)
}

// Config holds the orchestrator settings.
type Config struct {
	UploadDir         string
	MaxFileSize       int64
	AllowedExtensions []string
	Search            SearchOptions
}

// SearchOptions are the limit and threshold used when a query leaves them unset.
type SearchOptions struct {
	Limit     int      // Zero means the configured default; negative returns nothing
	Threshold *float64 // Nil means the configured default
}

// Threshold is a helper for SearchOptions literals.
func Threshold(v float64) *float64 { return &v }

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithTokenCounter records a token_count for every chunk.
func WithTokenCounter(c TokenCounter) Option {
	return func(o *Orchestrator) { o.tokens = c }
}

// WithSummarizer adds summary and keywords to completed documents.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

// CreateRequest describes a file that is already stored at Path.
type CreateRequest struct {
	Filename         string
	OriginalFilename string // Defaults to Filename
	Path             string
	Size             int64
	Owner            string
}

// UploadRequest describes a file to store and register.
type UploadRequest struct {
	Filename string
	Reader   io.Reader
	Size     int64 // Declared size; -1 when unknown
	Owner    string
}

// Orchestrator runs the document lifecycle: pending, processing, then completed or failed.
type Orchestrator struct {
	store      storage.Store
	extractor  Extractor
	splitter   *chunker.Splitter
	embedder   Embedder
	engine     *similarity.Engine
	tokens     TokenCounter
	summarizer Summarizer
	cfg        Config
	logger     *slog.Logger
}

// New creates an orchestrator with the given components.
func New(
	store storage.Store,
	extractor Extractor,
	splitter *chunker.Splitter,
	embedder Embedder,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDirectory
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultAllowedExtensions
	}
	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = DefaultSearchLimit
	}
	if cfg.Search.Threshold == nil {
		cfg.Search.Threshold = Threshold(DefaultThreshold)
	}

	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		engine:    similarity.NewEngine(embedder, store, logger),
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create registers a stored file as a pending document. It does no processing.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*storage.Document, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if req.OriginalFilename == "" {
		req.OriginalFilename = req.Filename
	}

	doc := &storage.Document{
		Filename: req.Filename,
		FilePath: req.Path,
		FileType: storage.FileType(req.Filename),
		FileSize: req.Size,
		Owner:    req.Owner,
		Metadata: storage.Metadata{
			storage.MetaStatus:           string(storage.StatusPending),
			storage.MetaOriginalFilename: req.OriginalFilename,
			storage.MetaUploadTime:       timestamp(),
		},
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	o.logger.Info("Created document", "document_id", doc.ID, "filename", doc.Filename)
	return doc, nil
}

// Process extracts, chunks and embeds a document and stores its chunks.
// It returns the number of chunks stored. Every failure after the document is
// loaded leaves it in the failed state with the error recorded in its metadata.
func (o *Orchestrator) Process(ctx context.Context, id int64) (int, error) {
	doc, err := o.store.GetDocument(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load document %d: %w", id, err)
	}
	if doc.Metadata == nil {
		doc.Metadata = storage.Metadata{}
	}

	if _, err := os.Stat(doc.FilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("file %s: %w", doc.FilePath, ErrNotFound)
		}
		return 0, o.fail(ctx, doc, err)
	}

	o.logger.Info("Processing document", "document_id", id, "filename", doc.Filename)
	doc.Metadata[storage.MetaStatus] = string(storage.StatusProcessing)
	doc.Metadata[storage.MetaProcessStart] = timestamp()
	delete(doc.Metadata, storage.MetaError)
	if err := o.store.UpdateDocumentMetadata(ctx, id, doc.Metadata); err != nil {
		return 0, o.fail(ctx, doc, fmt.Errorf("mark processing: %w", err))
	}

	// 1. Extract text
	extracted, err := o.extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		return 0, o.fail(ctx, doc, fmt.Errorf("extract: %w", err))
	}
	for k, v := range extracted.Metadata {
		doc.Metadata[k] = v
	}

	// 2. Chunk
	pieces := o.splitter.Split(extracted.Text)
	if len(pieces) == 0 {
		o.logger.Warn("Document has no text", "document_id", id, "filename", doc.Filename)
	}
	o.logger.Debug("Chunked document", "document_id", id, "chunks", len(pieces))

	// 3. Embed all chunks in one batch
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors := o.embedder.EmbedBatch(ctx, texts)

	// 4. Replace stored chunks in one transaction
	chunks := make([]*storage.Chunk, len(pieces))
	for i, p := range pieces {
		meta := storage.Metadata{
			"source":       doc.Filename,
			"chunk_index":  p.Index,
			"total_chunks": p.Total,
			"start":        p.Start,
			"end":          p.End,
			"file_type":    doc.FileType,
		}
		if o.tokens != nil {
			meta["token_count"] = o.tokens.Count(p.Text)
		}
		chunks[i] = &storage.Chunk{
			DocumentID: id,
			Index:      p.Index,
			Text:       p.Text,
			Embedding:  vectors[i],
			Metadata:   meta,
		}
	}
	if err := o.store.ReplaceChunks(ctx, id, chunks); err != nil {
		return 0, o.fail(ctx, doc, fmt.Errorf("store chunks: %w", err))
	}

	// 5. Mark completed
	doc.Metadata[storage.MetaStatus] = string(storage.StatusCompleted)
	doc.Metadata[storage.MetaChunksCount] = len(chunks)
	doc.Metadata[storage.MetaProcessEnd] = timestamp()
	if err := o.store.UpdateDocumentMetadata(ctx, id, doc.Metadata); err != nil {
		return 0, o.fail(ctx, doc, fmt.Errorf("mark completed: %w", err))
	}
	o.logger.Info("Processed document", "document_id", id, "chunks", len(chunks))

	if o.summarizer != nil && len(chunks) > 0 {
		o.enrich(ctx, doc, extracted.Text)
	}
	return len(chunks), nil
}

// enrich adds summary and keywords. Failures are logged and leave the document completed.
func (o *Orchestrator) enrich(ctx context.Context, doc *storage.Document, text string) {
	summary, err := o.summarizer.Summarize(ctx, doc.Filename, text)
	if err != nil {
		o.logger.Warn("Summary generation failed", "document_id", doc.ID, "error", err)
		return
	}
	doc.Metadata["summary"] = summary.Summary
	doc.Metadata["keywords"] = summary.Keywords
	if err := o.store.UpdateDocumentMetadata(ctx, doc.ID, doc.Metadata); err != nil {
		o.logger.Warn("Failed to store summary", "document_id", doc.ID, "error", err)
	}
}

// fail records cause on the document, drops any chunks left from an earlier run
// and returns cause. The writes ignore cancellation of ctx so an aborted run
// still leaves a final state.
func (o *Orchestrator) fail(ctx context.Context, doc *storage.Document, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := o.store.ReplaceChunks(ctx, doc.ID, nil); err != nil {
		o.logger.Error("Failed to clear chunks of failed document", "document_id", doc.ID, "error", err)
	}

	doc.Metadata[storage.MetaStatus] = string(storage.StatusFailed)
	doc.Metadata[storage.MetaError] = cause.Error()
	doc.Metadata[storage.MetaChunksCount] = 0
	doc.Metadata[storage.MetaProcessEnd] = timestamp()

	if err := o.store.UpdateDocumentMetadata(ctx, doc.ID, doc.Metadata); err != nil {
		o.logger.Error("Failed to record document failure", "document_id", doc.ID, "error", err)
	}
	o.logger.Error("Document processing failed", "document_id", doc.ID, "error", cause)
	return cause
}

// Delete removes a document, its chunks and its stored file.
// It reports false without side effects when the document does not exist.
func (o *Orchestrator) Delete(ctx context.Context, id int64) (bool, error) {
	doc, err := o.store.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load document %d: %w", id, err)
	}

	if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("Failed to remove stored file", "document_id", id, "path", doc.FilePath, "error", err)
	}

	deleted, err := o.store.DeleteDocument(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete document %d: %w", id, err)
	}
	if deleted {
		o.logger.Info("Deleted document", "document_id", id)
	}
	return deleted, nil
}

// Search ranks stored chunks against query.
func (o *Orchestrator) Search(ctx context.Context, query string, opts SearchOptions) ([]similarity.Result, error) {
	if opts.Limit == 0 {
		opts.Limit = o.cfg.Search.Limit
	}
	if opts.Threshold == nil {
		opts.Threshold = o.cfg.Search.Threshold
	}
	return o.engine.Search(ctx, query, opts.Limit, *opts.Threshold)
}

// Upload validates and stores a file under the upload directory, then creates its document.
// The stored name is a random UUID with the original extension.
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) (*storage.Document, error) {
	name := SafeFilename(req.Filename)
	ext := storage.FileType(name)
	if !o.Allowed(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if req.Size > o.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, req.Size, o.cfg.MaxFileSize)
	}

	if err := os.MkdirAll(o.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(o.cfg.UploadDir, uuid.NewString()+ext)

	size, err := o.writeFile(path, req.Reader)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	o.logger.Info("Stored upload", "filename", name, "path", path, "size", size)

	doc, err := o.Create(ctx, CreateRequest{
		Filename:         name,
		OriginalFilename: req.Filename,
		Path:             path,
		Size:             size,
		Owner:            req.Owner,
	})
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return doc, nil
}

func (o *Orchestrator) writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	// Read one byte past the limit to detect oversized streams of unknown length.
	n, err := io.Copy(f, io.LimitReader(r, o.cfg.MaxFileSize+1))
	if err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	if n > o.cfg.MaxFileSize {
		return 0, fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, o.cfg.MaxFileSize)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}
	return n, nil
}

// Allowed reports whether name has an accepted extension.
func (o *Orchestrator) Allowed(name string) bool {
	ext := storage.FileType(name)
	return ext != "" && slices.ContainsFunc(o.cfg.AllowedExtensions, func(a string) bool {
		return strings.EqualFold(a, ext)
	})
}

// Get returns a document and, when includeChunks is set, its chunks in order.
func (o *Orchestrator) Get(ctx context.Context, id int64, includeChunks bool) (*storage.Document, []*storage.Chunk, error) {
	doc, err := o.store.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load document %d: %w", id, err)
	}
	if !includeChunks {
		return doc, nil, nil
	}
	chunks, err := o.store.ListChunks(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load chunks: %w", err)
	}
	return doc, chunks, nil
}

// List returns a page of documents, newest first, and the total matching count.
func (o *Orchestrator) List(ctx context.Context, opts storage.ListOptions) ([]*storage.Document, int, error) {
	if opts.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: negative offset", ErrInvalidInput)
	}
	docs, total, err := o.store.ListDocuments(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

var unsafeChars = regexp.MustCompile(`[^\w\-.]`)

// SafeFilename strips directories and replaces characters outside [A-Za-z0-9_.-] with '_'.
// Example: "../My Report (v2).pdf" -> "My_Report__v2_.pdf"
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
