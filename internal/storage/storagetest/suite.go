// Package storagetest holds behavior tests shared by every storage.Store implementation.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsearch/internal/storage"
)

// Run exercises a store created fresh by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdateMetadata", func(t *testing.T) { testUpdateMetadata(t, newStore(t)) })
	t.Run("ListPaginationAndOwner", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ReplaceChunks", func(t *testing.T) { testReplaceChunks(t, newStore(t)) })
	t.Run("ReplaceChunksMissingDocument", func(t *testing.T) { testReplaceChunksMissing(t, newStore(t)) })
	t.Run("AllChunksSkipsUnvectorized", func(t *testing.T) { testAllChunks(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
}

func newDocument(name, owner string) *storage.Document {
	return &storage.Document{
		Filename: name,
		FilePath: "/uploads/" + name,
		FileType: storage.FileType(name),
		FileSize: 42,
		Owner:    owner,
		Metadata: storage.Metadata{
			storage.MetaStatus:           string(storage.StatusPending),
			storage.MetaOriginalFilename: name,
		},
	}
}

func testCreateAndGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := newDocument("notes.md", "alice")

	require.NoError(t, s.CreateDocument(ctx, doc))
	assert.NotZero(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", got.Filename)
	assert.Equal(t, "/uploads/notes.md", got.FilePath)
	assert.Equal(t, ".md", got.FileType)
	assert.Equal(t, int64(42), got.FileSize)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, storage.StatusPending, got.Status())
	assert.Equal(t, "notes.md", got.Metadata.String(storage.MetaOriginalFilename))

	second := newDocument("other.txt", "")
	require.NoError(t, s.CreateDocument(ctx, second))
	assert.NotEqual(t, doc.ID, second.ID)
}

func testGetMissing(t *testing.T, s storage.Store) {
	_, err := s.GetDocument(context.Background(), 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.UpdateDocumentMetadata(context.Background(), 9999, storage.Metadata{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdateMetadata(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := newDocument("a.txt", "")
	require.NoError(t, s.CreateDocument(ctx, doc))

	meta := doc.Metadata.Clone()
	meta[storage.MetaStatus] = string(storage.StatusCompleted)
	meta[storage.MetaChunksCount] = 3
	require.NoError(t, s.UpdateDocumentMetadata(ctx, doc.ID, meta))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, got.Status())
	n, ok := got.Metadata.Int(storage.MetaChunksCount)
	assert.True(t, ok)
	assert.Equal(t, 3, n)
}

func testList(t *testing.T, s storage.Store) {
	ctx := context.Background()
	var ids []int64
	for i, owner := range []string{"alice", "bob", "alice", "alice"} {
		doc := newDocument(string(rune('a'+i))+".txt", owner)
		require.NoError(t, s.CreateDocument(ctx, doc))
		ids = append(ids, doc.ID)
	}

	docs, total, err := s.ListDocuments(ctx, storage.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, docs, 2)
	assert.Equal(t, ids[3], docs[0].ID, "newest first")
	assert.Equal(t, ids[2], docs[1].ID)

	docs, total, err = s.ListDocuments(ctx, storage.ListOptions{Offset: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, docs, 2)

	docs, total, err = s.ListDocuments(ctx, storage.ListOptions{Owner: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, d := range docs {
		assert.Equal(t, "alice", d.Owner)
	}
}

func testReplaceChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := newDocument("doc.md", "")
	require.NoError(t, s.CreateDocument(ctx, doc))

	chunks := []*storage.Chunk{
		{Index: 0, Text: "first", Embedding: []float32{1, 0, 0}, Metadata: storage.Metadata{"chunk_index": 0}},
		{Index: 1, Text: "second", Embedding: []float32{0, 1, 0}, Metadata: storage.Metadata{"chunk_index": 1}},
	}
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, chunks))
	assert.NotZero(t, chunks[0].ID)
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)

	got, err := s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, []float32{1, 0, 0}, got[0].Embedding)
	assert.Equal(t, "doc.md", got[0].Filename)
	assert.Equal(t, doc.ID, got[1].DocumentID)

	// A second replace swaps the whole set.
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, []*storage.Chunk{
		{Index: 0, Text: "only", Embedding: []float32{0, 0, 1}},
	}))
	got, err = s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Text)
}

func testReplaceChunksMissing(t *testing.T, s storage.Store) {
	err := s.ReplaceChunks(context.Background(), 12345, []*storage.Chunk{{Index: 0, Text: "x"}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAllChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := newDocument("a.md", "")
	b := newDocument("b.md", "")
	require.NoError(t, s.CreateDocument(ctx, a))
	require.NoError(t, s.CreateDocument(ctx, b))

	require.NoError(t, s.ReplaceChunks(ctx, a.ID, []*storage.Chunk{
		{Index: 0, Text: "a0", Embedding: []float32{1, 0}},
		{Index: 1, Text: "a1"},
	}))
	require.NoError(t, s.ReplaceChunks(ctx, b.ID, []*storage.Chunk{
		{Index: 0, Text: "b0", Embedding: []float32{0, 1}},
	}))

	all, err := s.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Equal(t, "a0", all[0].Text)
	assert.Equal(t, "a.md", all[0].Filename)
	assert.Equal(t, "b.md", all[1].Filename)
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := newDocument("gone.txt", "")
	keep := newDocument("keep.txt", "")
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NoError(t, s.CreateDocument(ctx, keep))
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, []*storage.Chunk{{Index: 0, Text: "x", Embedding: []float32{1}}}))
	require.NoError(t, s.ReplaceChunks(ctx, keep.ID, []*storage.Chunk{{Index: 0, Text: "y", Embedding: []float32{1}}}))

	deleted, err := s.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	chunks, err := s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	all, err := s.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].DocumentID)

	deleted, err = s.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
