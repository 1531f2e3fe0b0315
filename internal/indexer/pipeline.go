// Package indexer imports files from a remote source into the document store.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/bull/docsearch/internal/github"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
)

// IndexResult contains statistics about an import.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	QueuedDocs     int
	FailedDocs     []FailedDoc
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc represents a file that failed to import.
type FailedDoc struct {
	Path   string
	Reason string
}

// Source lists and downloads files.
type Source interface {
	LatestCommitSHA(ctx context.Context) (string, error)
	ListFiles(ctx context.Context) ([]string, error)
	FetchFile(ctx context.Context, relativePath string) (*github.FetchedFile, error)
}

// Documents stores and processes imported files.
type Documents interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (*storage.Document, error)
	Process(ctx context.Context, id int64) (int, error)
}

// Queue schedules background processing.
type Queue interface {
	Enqueue(id int64) error
}

// Pipeline copies every file of a source into the document store.
type Pipeline struct {
	source Source
	docs   Documents
	queue  Queue
	owner  string
	logger *slog.Logger
}

// NewPipeline creates an import pipeline. With a nil queue each file is processed
// before the next one is fetched; otherwise processing is left to the queue.
func NewPipeline(source Source, docs Documents, queue Queue, owner string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source: source,
		docs:   docs,
		queue:  queue,
		owner:  owner,
		logger: logger,
	}
}

// IndexAll imports every file the source lists.
// Per-file failures are recorded in the result and do not stop the import.
func (p *Pipeline) IndexAll(ctx context.Context) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	commitSHA, err := p.source.LatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("get commit SHA: %w", err)
	}
	result.CommitSHA = commitSHA
	p.logger.Info("Starting import", "commit", commitSHA)

	paths, err := p.source.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("Found files", "count", len(paths))

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, queued, err := p.importFile(ctx, rel)
		if err != nil {
			p.logger.Warn("Failed to import file", "path", rel, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   rel,
				Reason: err.Error(),
			})
			continue
		}
		if queued {
			result.QueuedDocs++
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	p.logger.Info("Import complete",
		"successful", result.SuccessfulDocs,
		"queued", result.QueuedDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}

// importFile fetches and stores one file, then processes or queues it.
func (p *Pipeline) importFile(ctx context.Context, rel string) (chunks int, queued bool, err error) {
	fetched, err := p.source.FetchFile(ctx, rel)
	if err != nil {
		return 0, false, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched file", "path", rel, "size", len(fetched.Content))

	doc, err := p.docs.Upload(ctx, ingest.UploadRequest{
		Filename: path.Base(rel),
		Reader:   bytes.NewReader(fetched.Content),
		Size:     int64(len(fetched.Content)),
		Owner:    p.owner,
	})
	if err != nil {
		return 0, false, fmt.Errorf("store: %w", err)
	}

	if p.queue != nil {
		if err := p.queue.Enqueue(doc.ID); err != nil {
			return 0, false, fmt.Errorf("queue document %d: %w", doc.ID, err)
		}
		return 0, true, nil
	}

	n, err := p.docs.Process(ctx, doc.ID)
	if err != nil {
		return 0, false, fmt.Errorf("process document %d: %w", doc.ID, err)
	}
	p.logger.Info("Imported file", "path", rel, "document_id", doc.ID, "chunks", n)
	return n, false, nil
}
