package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsearch/internal/chunker"
	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/extract"
	"github.com/bull/docsearch/internal/github"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
	"github.com/bull/docsearch/internal/storage/memory"
)

type fakeSource struct {
	sha       string
	shaErr    error
	files     map[string]string
	order     []string
	fetchErrs map[string]error
}

func (s *fakeSource) LatestCommitSHA(context.Context) (string, error) {
	return s.sha, s.shaErr
}

func (s *fakeSource) ListFiles(context.Context) ([]string, error) {
	return s.order, nil
}

func (s *fakeSource) FetchFile(_ context.Context, rel string) (*github.FetchedFile, error) {
	if err := s.fetchErrs[rel]; err != nil {
		return nil, err
	}
	return &github.FetchedFile{Path: rel, Content: []byte(s.files[rel]), SHA: "sha-" + rel}, nil
}

type recordingQueue struct {
	ids []int64
}

func (q *recordingQueue) Enqueue(id int64) error {
	q.ids = append(q.ids, id)
	return nil
}

func newOrchestrator(t *testing.T) (*ingest.Orchestrator, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	splitter, err := chunker.NewSplitter(chunker.WithSize(15), chunker.WithOverlap(5))
	require.NoError(t, err)
	provider := embedding.NewProvider(nil, embedding.Config{Dimension: 8}, logger)
	orch := ingest.New(store, extract.NewRegistry(), splitter, provider, ingest.Config{
		UploadDir: filepath.Join(t.TempDir(), "uploads"),
	}, logger)
	return orch, store
}

func testSource() *fakeSource {
	return &fakeSource{
		sha: "c0ffee",
		files: map[string]string{
			"intro.md":         "# Intro\n\nHello world. This is a test.",
			"guides/setup.txt": "Install it.",
			"tool.exe":         "MZ",
			"broken.md":        "",
		},
		order:     []string{"intro.md", "guides/setup.txt", "tool.exe", "broken.md"},
		fetchErrs: map[string]error{"broken.md": errors.New("502 bad gateway")},
	}
}

func TestPipeline_IndexAll_Inline(t *testing.T) {
	ctx := context.Background()
	orch, store := newOrchestrator(t)
	p := NewPipeline(testSource(), orch, nil, "importer", slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := p.IndexAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, "c0ffee", result.CommitSHA)
	assert.Equal(t, 4, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Zero(t, result.QueuedDocs)
	assert.Positive(t, result.TotalChunks)
	require.Len(t, result.FailedDocs, 2)
	assert.Equal(t, "tool.exe", result.FailedDocs[0].Path)
	assert.Contains(t, result.FailedDocs[0].Reason, "unsupported file type")
	assert.Equal(t, "broken.md", result.FailedDocs[1].Path)
	assert.Contains(t, result.FailedDocs[1].Reason, "502")

	docs, total, err := store.ListDocuments(ctx, storage.ListOptions{Owner: "importer"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, d := range docs {
		assert.Equal(t, storage.StatusCompleted, d.Status())
	}
	assert.Equal(t, "setup.txt", docs[0].Filename)
	assert.Equal(t, "intro.md", docs[1].Filename)
}

func TestPipeline_IndexAll_Queued(t *testing.T) {
	ctx := context.Background()
	orch, store := newOrchestrator(t)
	queue := &recordingQueue{}
	p := NewPipeline(testSource(), orch, queue, "", nil)

	result, err := p.IndexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.QueuedDocs)
	assert.Zero(t, result.SuccessfulDocs)
	assert.Zero(t, result.TotalChunks)
	require.Len(t, queue.ids, 2)

	for _, id := range queue.ids {
		doc, err := store.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, storage.StatusPending, doc.Status())
	}
}

func TestPipeline_IndexAll_CommitError(t *testing.T) {
	orch, _ := newOrchestrator(t)
	src := testSource()
	src.shaErr = errors.New("rate limited")

	_, err := NewPipeline(src, orch, nil, "", nil).IndexAll(context.Background())
	assert.ErrorContains(t, err, "rate limited")
}

func TestPipeline_IndexAll_Cancelled(t *testing.T) {
	orch, _ := newOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(testSource(), orch, nil, "", nil).IndexAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
