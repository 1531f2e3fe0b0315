package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsearch/internal/config"
	"github.com/bull/docsearch/internal/embedding"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatabaseDriver = driver
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "docsearch.db")
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.ChunkSize = 15
	cfg.ChunkOverlap = 5
	cfg.OpenAIAPIKey = ""
	cfg.EmbeddingBaseURL = ""
	return cfg
}

func TestNew_EndToEnd(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			a, err := New(ctx, testConfig(t, driver), slog.New(slog.NewTextHandler(io.Discard, nil)))
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })

			worker := a.NewWorker(ctx)
			content := "Hello world. This is a test."
			doc, err := a.Docs.Upload(ctx, ingest.UploadRequest{
				Filename: "hello.txt",
				Reader:   strings.NewReader(content),
				Size:     int64(len(content)),
			})
			require.NoError(t, err)
			require.NoError(t, worker.Enqueue(doc.ID))
			worker.Close()

			got, err := a.Store.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, storage.StatusCompleted, got.Status())

			results, err := a.Docs.Search(ctx, "Hello world.", ingest.SearchOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "Hello world.", results[0].Chunk.Text)
			assert.Equal(t, embedding.StateFallback, a.Provider.State())
			assert.Equal(t, 384, a.Provider.Dimension())
		})
	}
}

func TestNew_SkipVectorModel(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.OpenAIAPIKey = "sk-test"
	cfg.SkipVectorModel = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	info := a.Provider.Info(context.Background())
	assert.Equal(t, "fallback", info.State)
	assert.False(t, info.ModelLoaded)
}

func TestNew_InvalidChunking(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.ChunkOverlap = cfg.ChunkSize

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, "mysql")
	_, err := OpenStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "mysql")
}
