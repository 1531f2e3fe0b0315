package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
)

// makeSearchHandler creates the search_documents tool handler.
// With unique_documents set, three times the limit is ranked and only the
// highest-scoring chunk of each document is kept.
func makeSearchHandler(docs Documents) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		limit := input.Limit
		if limit <= 0 {
			limit = ingest.DefaultSearchLimit
		}
		fetch := limit
		if input.UniqueDocuments {
			fetch = limit * 3
		}

		results, err := docs.Search(ctx, input.Query, ingest.SearchOptions{
			Limit:     fetch,
			Threshold: input.Threshold,
		})
		if err != nil {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := make([]SearchResult, 0, min(len(results), limit))
		seen := make(map[int64]bool)
		for _, r := range results {
			if len(out) == limit {
				break
			}
			if input.UniqueDocuments {
				if seen[r.Chunk.DocumentID] {
					continue
				}
				seen[r.Chunk.DocumentID] = true
			}
			out = append(out, SearchResult{
				ChunkID:    r.Chunk.ID,
				DocumentID: r.Chunk.DocumentID,
				Filename:   r.Chunk.Filename,
				ChunkIndex: r.Chunk.Index,
				Text:       r.Chunk.Text,
				Similarity: r.Score,
			})
		}

		output := SearchDocumentsOutput{Results: out, Count: len(out)}
		if len(out) == 0 {
			output.Message = "No matching chunks found. Try broader search terms or a lower threshold."
		}
		return nil, output, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(docs Documents) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		list, total, err := docs.List(ctx, storage.ListOptions{
			Offset: input.Offset,
			Limit:  input.Limit,
			Owner:  input.Owner,
		})
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		summaries := make([]DocumentSummary, 0, len(list))
		for _, d := range list {
			summaries = append(summaries, newDocumentSummary(d))
		}
		return nil, ListDocumentsOutput{Documents: summaries, Total: total}, nil
	}
}

// makeGetHandler creates the get_document tool handler.
// A missing document is reported with found=false rather than as an error.
func makeGetHandler(docs Documents) func(
	context.Context, *mcp.CallToolRequest, GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (
		*mcp.CallToolResult, GetDocumentOutput, error,
	) {
		doc, chunks, err := docs.Get(ctx, input.ID, input.IncludeChunks)
		if err != nil {
			if errors.Is(err, ingest.ErrNotFound) {
				return nil, GetDocumentOutput{Found: false, Chunks: []ChunkText{}}, nil
			}
			return nil, GetDocumentOutput{}, fmt.Errorf("failed to get document: %w", err)
		}

		summary := newDocumentSummary(doc)
		texts := make([]ChunkText, 0, len(chunks))
		for _, c := range chunks {
			texts = append(texts, ChunkText{Index: c.Index, Text: c.Text})
		}
		return nil, GetDocumentOutput{Found: true, Document: &summary, Chunks: texts}, nil
	}
}

// makeProcessHandler creates the process_document tool handler.
func makeProcessHandler(docs Documents, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, DocumentIDInput,
) (*mcp.CallToolResult, ProcessDocumentOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DocumentIDInput) (
		*mcp.CallToolResult, ProcessDocumentOutput, error,
	) {
		n, err := docs.Process(ctx, input.ID)
		if err != nil {
			logger.Warn("Processing via MCP failed", "document_id", input.ID, "error", err)
			return nil, ProcessDocumentOutput{}, fmt.Errorf("processing document %d failed: %w", input.ID, err)
		}
		return nil, ProcessDocumentOutput{
			ID:          input.ID,
			Status:      string(storage.StatusCompleted),
			ChunksCount: n,
		}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler.
func makeDeleteHandler(docs Documents, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, DocumentIDInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DocumentIDInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		deleted, err := docs.Delete(ctx, input.ID)
		if err != nil {
			return nil, DeleteDocumentOutput{}, fmt.Errorf("failed to delete document: %w", err)
		}
		if deleted {
			logger.Info("Deleted document via MCP", "document_id", input.ID)
		}
		return nil, DeleteDocumentOutput{ID: input.ID, Deleted: deleted}, nil
	}
}

// makeModelInfoHandler creates the model_info tool handler. It triggers the lazy model load.
func makeModelInfoHandler(models Models) func(
	context.Context, *mcp.CallToolRequest, ModelInfoInput,
) (*mcp.CallToolResult, embedding.ModelInfo, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ModelInfoInput) (
		*mcp.CallToolResult, embedding.ModelInfo, error,
	) {
		return nil, models.Info(ctx), nil
	}
}
