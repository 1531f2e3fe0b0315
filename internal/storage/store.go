package storage

import "context"

// Store persists documents and their chunks.
type Store interface {
	// CreateDocument inserts doc and sets its ID and timestamps.
	CreateDocument(ctx context.Context, doc *Document) error
	// GetDocument returns ErrNotFound when id does not exist.
	GetDocument(ctx context.Context, id int64) (*Document, error)
	// UpdateDocumentMetadata replaces the metadata of a document.
	UpdateDocumentMetadata(ctx context.Context, id int64, meta Metadata) error
	// ListDocuments returns a page of documents, newest first, and the total count.
	ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, int, error)
	// DeleteDocument removes a document and its chunks. It reports whether the document existed.
	DeleteDocument(ctx context.Context, id int64) (bool, error)

	// ReplaceChunks atomically swaps the chunk set of a document and sets chunk IDs.
	ReplaceChunks(ctx context.Context, documentID int64, chunks []*Chunk) error
	// ListChunks returns a document's chunks ordered by index.
	ListChunks(ctx context.Context, documentID int64) ([]*Chunk, error)
	// AllChunks returns every chunk with an embedding, ordered by ID, with Filename filled.
	AllChunks(ctx context.Context) ([]*Chunk, error)

	Ping(ctx context.Context) error
	Close() error
}
