package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/similarity"
	"github.com/bull/docsearch/internal/storage"
)

// Documents is the document service behind the tools.
type Documents interface {
	Search(ctx context.Context, query string, opts ingest.SearchOptions) ([]similarity.Result, error)
	Get(ctx context.Context, id int64, includeChunks bool) (*storage.Document, []*storage.Chunk, error)
	List(ctx context.Context, opts storage.ListOptions) ([]*storage.Document, int, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Process(ctx context.Context, id int64) (int, error)
}

// Models reports the embedding model.
type Models interface {
	Info(ctx context.Context) embedding.ModelInfo
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	docs    Documents
	models  Models
	version string
	logger  *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Documents Documents
	Models    Models
	Version   string
	Logger    *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docsearch",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over the chunks of every processed document. Returns the best matching chunk texts with their similarity scores.",
	}, makeSearchHandler(cfg.Documents))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List uploaded documents with their processing status, newest first.",
	}, makeListHandler(cfg.Documents))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Get one document by id, optionally with the text of its chunks.",
	}, makeGetHandler(cfg.Documents))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_document",
		Description: "Extract, chunk and embed a document again. Replaces any existing chunks.",
	}, makeProcessHandler(cfg.Documents, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document, its chunks and its stored file.",
	}, makeDeleteHandler(cfg.Documents, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "model_info",
		Description: "Report the embedding model in use and whether fallback vectors are being served.",
	}, makeModelInfoHandler(cfg.Models))

	return &Server{
		server:  server,
		docs:    cfg.Documents,
		models:  cfg.Models,
		version: version,
		logger:  logger,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
