package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsearch/internal/chunker"
	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/extract"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
	"github.com/bull/docsearch/internal/storage/memory"
)

type fixture struct {
	orch     *ingest.Orchestrator
	store    *memory.Store
	provider *embedding.Provider
	session  *mcp.ClientSession
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := quietLogger()
	store := memory.New()
	splitter, err := chunker.NewSplitter(chunker.WithSize(15), chunker.WithOverlap(5))
	require.NoError(t, err)
	provider := embedding.NewProvider(nil, embedding.Config{Dimension: 384}, logger)
	orch := ingest.New(store, extract.NewRegistry(), splitter, provider, ingest.Config{
		UploadDir: filepath.Join(t.TempDir(), "uploads"),
	}, logger)

	server := NewServer(&Config{Documents: orch, Models: provider, Logger: logger})

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return &fixture{orch: orch, store: store, provider: provider, session: cs}
}

func (f *fixture) ingest(t *testing.T, name, content string) *storage.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.orch.Upload(ctx, ingest.UploadRequest{
		Filename: name,
		Reader:   strings.NewReader(content),
		Size:     int64(len(content)),
	})
	require.NoError(t, err)
	_, err = f.orch.Process(ctx, doc.ID)
	require.NoError(t, err)
	return doc
}

func (f *fixture) call(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, "tool returned error: %v", errorText(res))
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func errorText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	f := newFixture(t)

	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"search_documents", "list_documents", "get_document",
		"process_document", "delete_document", "model_info",
	}, names)
}

func TestSearchDocuments(t *testing.T) {
	f := newFixture(t)
	a := f.ingest(t, "a.txt", "Hello world. This is a test.")
	b := f.ingest(t, "b.txt", "Hello world. Another file here.")

	out := decode[SearchDocumentsOutput](t, f.call(t, "search_documents", map[string]any{
		"query": "Hello world.",
	}))
	require.Equal(t, 2, out.Count)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, []int64{out.Results[0].DocumentID, out.Results[1].DocumentID})
	for _, r := range out.Results {
		assert.Equal(t, "Hello world.", r.Text)
		assert.Equal(t, 0, r.ChunkIndex)
		assert.InDelta(t, 1.0, r.Similarity, 1e-5)
	}
	assert.Empty(t, out.Message)
}

func TestSearchDocuments_Limit(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.txt", "Hello world. This is a test.")
	f.ingest(t, "b.txt", "Hello world. Another file here.")

	out := decode[SearchDocumentsOutput](t, f.call(t, "search_documents", map[string]any{
		"query":     "Hello world.",
		"threshold": -1.0,
		"limit":     4,
	}))
	assert.Equal(t, 4, out.Count)
	for i := 1; i < len(out.Results); i++ {
		assert.GreaterOrEqual(t, out.Results[i-1].Similarity, out.Results[i].Similarity)
	}
}

func TestSearchDocuments_UniqueDocuments(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.txt", "Hello world. This is a test.")
	f.ingest(t, "b.txt", "Hello world. Another file here.")

	out := decode[SearchDocumentsOutput](t, f.call(t, "search_documents", map[string]any{
		"query":            "Hello world.",
		"threshold":        -1.0,
		"unique_documents": true,
	}))
	require.Equal(t, 2, out.Count)
	assert.NotEqual(t, out.Results[0].DocumentID, out.Results[1].DocumentID)
	assert.Equal(t, "Hello world.", out.Results[0].Text)
}

func TestSearchDocuments_NoResults(t *testing.T) {
	f := newFixture(t)

	out := decode[SearchDocumentsOutput](t, f.call(t, "search_documents", map[string]any{"query": "anything"}))
	assert.Equal(t, 0, out.Count)
	assert.Empty(t, out.Results)
	assert.NotEmpty(t, out.Message)
}

func TestListDocuments(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.txt", "First document.")
	b := f.ingest(t, "b.md", "# Second\n\nSecond document.")

	out := decode[ListDocumentsOutput](t, f.call(t, "list_documents", map[string]any{"limit": 1}))
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, b.ID, out.Documents[0].ID)
	assert.Equal(t, "b.md", out.Documents[0].Filename)
	assert.Equal(t, ".md", out.Documents[0].FileType)
	assert.Equal(t, "completed", out.Documents[0].Status)
	assert.Positive(t, out.Documents[0].ChunksCount)
}

func TestGetDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "a.txt", "Hello world. This is a test.")

	out := decode[GetDocumentOutput](t, f.call(t, "get_document", map[string]any{
		"id":             doc.ID,
		"include_chunks": true,
	}))
	require.True(t, out.Found)
	require.NotNil(t, out.Document)
	assert.Equal(t, "a.txt", out.Document.Filename)
	assert.Equal(t, 3, out.Document.ChunksCount)
	require.Len(t, out.Chunks, 3)
	assert.Equal(t, "Hello world.", out.Chunks[0].Text)

	out = decode[GetDocumentOutput](t, f.call(t, "get_document", map[string]any{"id": doc.ID}))
	assert.True(t, out.Found)
	assert.Empty(t, out.Chunks)

	out = decode[GetDocumentOutput](t, f.call(t, "get_document", map[string]any{"id": 999}))
	assert.False(t, out.Found)
	assert.Nil(t, out.Document)
}

func TestProcessDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "a.txt", "Hello world. This is a test.")

	out := decode[ProcessDocumentOutput](t, f.call(t, "process_document", map[string]any{"id": doc.ID}))
	assert.Equal(t, doc.ID, out.ID)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, 3, out.ChunksCount)

	res := f.call(t, "process_document", map[string]any{"id": 999})
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), "999")
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "a.txt", "Hello world.")

	out := decode[DeleteDocumentOutput](t, f.call(t, "delete_document", map[string]any{"id": doc.ID}))
	assert.True(t, out.Deleted)

	out = decode[DeleteDocumentOutput](t, f.call(t, "delete_document", map[string]any{"id": doc.ID}))
	assert.False(t, out.Deleted)

	_, err := f.store.GetDocument(context.Background(), doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestModelInfo(t *testing.T) {
	f := newFixture(t)

	info := decode[embedding.ModelInfo](t, f.call(t, "model_info", map[string]any{}))
	assert.Equal(t, 384, info.Dimension)
	assert.False(t, info.ModelLoaded)
	assert.Equal(t, "fallback", info.State)
	assert.Equal(t, embedding.StateFallback, f.provider.State())
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return assert.AnError }

func TestHealthHandler(t *testing.T) {
	state := func() embedding.State { return embedding.StateLoaded }

	rec := httptest.NewRecorder()
	NewHealthHandler(memory.New(), state)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "loaded", resp.Embedding)

	rec = httptest.NewRecorder()
	NewHealthHandler(downPinger{}, state)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "disconnected", resp.Database)
}

func TestMux(t *testing.T) {
	server := NewServer(&Config{Version: "v1.2.3", Logger: quietLogger()})
	mux := NewMux(server, NewHealthHandler(memory.New(), func() embedding.State { return embedding.StateFallback }), nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "v1.2.3")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
