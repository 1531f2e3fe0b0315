package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsearch/internal/storage"
	"github.com/bull/docsearch/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc := &storage.Document{Filename: "a.txt", Metadata: storage.Metadata{"status": "pending"}}
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	got.Metadata["status"] = "completed"

	again, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, again.Status())
}

func TestStore_RejectsDuplicateIndex(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc := &storage.Document{Filename: "a.txt"}
	require.NoError(t, s.CreateDocument(ctx, doc))

	err := s.ReplaceChunks(ctx, doc.ID, []*storage.Chunk{{Index: 0, Text: "a"}, {Index: 0, Text: "b"}})
	assert.ErrorIs(t, err, storage.ErrPersistence)
}
