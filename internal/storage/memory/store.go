// Package memory implements storage.Store in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bull/docsearch/internal/storage"
)

// Store keeps documents and chunks in maps guarded by a RWMutex.
// Values are copied in and out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	documents   map[int64]*storage.Document
	chunks      map[int64][]*storage.Chunk // by document ID, ordered by index
	nextDocID   int64
	nextChunkID int64
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		documents: make(map[int64]*storage.Document),
		chunks:    make(map[int64][]*storage.Chunk),
	}
}

func (s *Store) CreateDocument(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDocID++
	now := time.Now().UTC()
	doc.ID = s.nextDocID
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.documents[doc.ID] = copyDocument(doc)
	return nil
}

func (s *Store) GetDocument(_ context.Context, id int64) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyDocument(doc), nil
}

func (s *Store) UpdateDocumentMetadata(_ context.Context, id int64, meta storage.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return storage.ErrNotFound
	}
	doc.Metadata = meta.Clone()
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListDocuments(_ context.Context, opts storage.ListOptions) ([]*storage.Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	var matched []*storage.Document
	for _, doc := range s.documents {
		if opts.Owner != "" && doc.Owner != opts.Owner {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := min(max(opts.Offset, 0), total)
	end := min(start+limit, total)

	page := make([]*storage.Document, 0, end-start)
	for _, doc := range matched[start:end] {
		page = append(page, copyDocument(doc))
	}
	return page, total, nil
}

func (s *Store) DeleteDocument(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return false, nil
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return true, nil
}

func (s *Store) ReplaceChunks(_ context.Context, documentID int64, chunks []*storage.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return storage.ErrNotFound
	}

	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.Index] {
			return storage.ErrPersistence
		}
		seen[c.Index] = true
	}

	now := time.Now().UTC()
	stored := make([]*storage.Chunk, 0, len(chunks))
	for _, c := range chunks {
		s.nextChunkID++
		c.ID = s.nextChunkID
		c.DocumentID = documentID
		c.CreatedAt = now
		c.UpdatedAt = now
		stored = append(stored, copyChunk(c))
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })
	s.chunks[documentID] = stored
	return nil
}

func (s *Store) ListChunks(_ context.Context, documentID int64) ([]*storage.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, nil
	}
	out := make([]*storage.Chunk, 0, len(s.chunks[documentID]))
	for _, c := range s.chunks[documentID] {
		cp := copyChunk(c)
		cp.Filename = doc.Filename
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) AllChunks(_ context.Context) ([]*storage.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Chunk
	for docID, chunks := range s.chunks {
		filename := s.documents[docID].Filename
		for _, c := range chunks {
			if len(c.Embedding) == 0 {
				continue
			}
			cp := copyChunk(c)
			cp.Filename = filename
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func copyDocument(d *storage.Document) *storage.Document {
	cp := *d
	cp.Metadata = d.Metadata.Clone()
	return &cp
}

func copyChunk(c *storage.Chunk) *storage.Chunk {
	cp := *c
	cp.Metadata = c.Metadata.Clone()
	if c.Embedding != nil {
		cp.Embedding = append([]float32(nil), c.Embedding...)
	}
	return &cp
}
