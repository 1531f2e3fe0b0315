// Package postgres implements storage.Store on PostgreSQL with the pgvector extension.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bull/docsearch/internal/storage"
)

const schema = `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id          BIGSERIAL PRIMARY KEY,
		filename    TEXT NOT NULL,
		file_path   TEXT NOT NULL,
		file_type   TEXT NOT NULL DEFAULT '',
		file_size   BIGINT NOT NULL DEFAULT 0,
		owner       TEXT,
		metadata    JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at  TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner);

	-- Vector length is fixed by the embedding model, not by the schema.
	CREATE TABLE IF NOT EXISTS document_chunks (
		id           BIGSERIAL PRIMARY KEY,
		document_id  BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index  INT NOT NULL,
		chunk_text   TEXT NOT NULL,
		embedding    vector,
		metadata     JSONB NOT NULL DEFAULT '{}',
		created_at   TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at   TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id);
`

// Store is a storage.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects to connStr, waits for the server with exponential backoff and creates the schema.
func Open(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.pingWithRetry(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrUnreachable, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// pingWithRetry performs the startup health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *Store) pingWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error { return s.pool.Ping(ctx) }, backoff.WithContext(b, ctx))
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ==================== Documents ====================

func (s *Store) CreateDocument(ctx context.Context, doc *storage.Document) error {
	metaJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.pool.QueryRow(ctx, `
		INSERT INTO documents (filename, file_path, file_type, file_size, owner, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, doc.Filename, doc.FilePath, doc.FileType, doc.FileSize, nullString(doc.Owner), metaJSON, now).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("%w: inserting document: %w", storage.ErrPersistence, err)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (*storage.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, filename, file_path, file_type, file_size, owner, metadata, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)
	return scanDocument(row)
}

func (s *Store) UpdateDocumentMetadata(ctx context.Context, id int64, meta storage.Metadata) error {
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET metadata = $1, updated_at = $2 WHERE id = $3
	`, metaJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: updating document: %w", storage.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, opts storage.ListOptions) ([]*storage.Document, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	// An empty owner matches every row.
	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM documents WHERE $1 = '' OR owner = $1
	`, opts.Owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, file_path, file_type, file_size, owner, metadata, created_at, updated_at
		FROM documents
		WHERE $1 = '' OR owner = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, opts.Owner, limit, max(opts.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*storage.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// DeleteDocument removes the document row; chunks go with it through ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("%w: deleting document: %w", storage.ErrPersistence, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ==================== Chunks ====================

func (s *Store) ReplaceChunks(ctx context.Context, documentID int64, chunks []*storage.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", storage.ErrPersistence, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Lock the parent row so a concurrent delete cannot interleave.
	var locked int64
	err = tx.QueryRow(ctx, "SELECT id FROM documents WHERE id = $1 FOR UPDATE", documentID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: locking document: %w", storage.ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM document_chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("%w: clearing chunks: %w", storage.ErrPersistence, err)
	}

	now := time.Now().UTC()
	for _, chunk := range chunks {
		metaJSON, err := marshalMetadata(chunk.Metadata)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO document_chunks (document_id, chunk_index, chunk_text, embedding, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING id
		`, documentID, chunk.Index, chunk.Text, toVector(chunk.Embedding), metaJSON, now).Scan(&chunk.ID)
		if err != nil {
			return fmt.Errorf("%w: saving chunk %d: %w", storage.ErrPersistence, chunk.Index, err)
		}
		chunk.DocumentID = documentID
		chunk.CreatedAt = now
		chunk.UpdatedAt = now
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", storage.ErrPersistence, err)
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context, documentID int64) ([]*storage.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.embedding, c.metadata,
		       c.created_at, c.updated_at, d.filename
		FROM document_chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = $1
		ORDER BY c.chunk_index
	`, documentID)
}

func (s *Store) AllChunks(ctx context.Context) ([]*storage.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.embedding, c.metadata,
		       c.created_at, c.updated_at, d.filename
		FROM document_chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		ORDER BY c.id
	`)
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]*storage.Chunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*storage.Chunk
	for rows.Next() {
		var (
			c         storage.Chunk
			embedding *pgvector.Vector
			metaJSON  []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &embedding, &metaJSON,
			&c.CreatedAt, &c.UpdatedAt, &c.Filename); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if embedding != nil {
			c.Embedding = embedding.Slice()
		}
		if c.Metadata, err = unmarshalMetadata(metaJSON); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// ==================== Helpers ====================

func scanDocument(row pgx.Row) (*storage.Document, error) {
	var (
		doc      storage.Document
		owner    *string
		metaJSON []byte
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileType, &doc.FileSize,
		&owner, &metaJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if owner != nil {
		doc.Owner = *owner
	}
	if doc.Metadata, err = unmarshalMetadata(metaJSON); err != nil {
		return nil, err
	}
	return &doc, nil
}

func marshalMetadata(meta storage.Metadata) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: marshalling metadata: %w", storage.ErrPersistence, err)
	}
	return string(b), nil
}

func unmarshalMetadata(b []byte) (storage.Metadata, error) {
	meta := storage.Metadata{}
	if len(b) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	return meta, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toVector maps an empty embedding to NULL.
func toVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}
