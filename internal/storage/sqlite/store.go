// Package sqlite implements storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bull/docsearch/internal/storage"
	"github.com/bull/docsearch/internal/storage/sqlite/migrations"
)

// Store is a storage.Store backed by a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Documents ====================

// CreateDocument inserts doc and fills in its ID and timestamps.
func (s *Store) CreateDocument(ctx context.Context, doc *storage.Document) error {
	metaJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (filename, file_path, file_type, file_size, owner, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Filename, doc.FilePath, doc.FileType, doc.FileSize, nullString(doc.Owner), metaJSON, now, now)
	if err != nil {
		return fmt.Errorf("%w: inserting document: %w", storage.ErrPersistence, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: reading document id: %w", storage.ErrPersistence, err)
	}
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*storage.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, file_path, file_type, file_size, owner, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// UpdateDocumentMetadata replaces a document's metadata.
func (s *Store) UpdateDocumentMetadata(ctx context.Context, id int64, meta storage.Metadata) error {
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET metadata = ?, updated_at = ? WHERE id = ?
	`, metaJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: updating document: %w", storage.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: updating document: %w", storage.ErrPersistence, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListDocuments returns a page of documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, opts storage.ListOptions) ([]*storage.Document, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	where := ""
	var args []any
	if opts.Owner != "" {
		where = "WHERE owner = ?"
		args = append(args, opts.Owner)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, file_path, file_type, file_size, owner, metadata, created_at, updated_at
		FROM documents `+where+`
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, max(opts.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*storage.Document //nolint:prealloc
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// DeleteDocument removes a document and its chunks in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: beginning transaction: %w", storage.ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", id); err != nil {
		return false, fmt.Errorf("%w: deleting chunks: %w", storage.ErrPersistence, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("%w: deleting document: %w", storage.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: deleting document: %w", storage.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: committing transaction: %w", storage.ErrPersistence, err)
	}
	return n > 0, nil
}

// ==================== Chunks ====================

// ReplaceChunks deletes the document's existing chunks and inserts the new set in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID int64, chunks []*storage.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", storage.ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", documentID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: checking document: %w", storage.ErrPersistence, err)
	}
	if exists == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("%w: clearing chunks: %w", storage.ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (document_id, chunk_index, chunk_text, embedding, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing statement: %w", storage.ErrPersistence, err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		metaJSON, err := marshalMetadata(chunk.Metadata)
		if err != nil {
			return err
		}

		res, err := stmt.ExecContext(ctx, documentID, chunk.Index, chunk.Text,
			embeddingValue(chunk.Embedding), metaJSON, now, now)
		if err != nil {
			return fmt.Errorf("%w: saving chunk %d: %w", storage.ErrPersistence, chunk.Index, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: reading chunk id: %w", storage.ErrPersistence, err)
		}
		chunk.ID = id
		chunk.DocumentID = documentID
		chunk.CreatedAt = now
		chunk.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", storage.ErrPersistence, err)
	}
	return nil
}

// ListChunks retrieves all chunks for a document ordered by index.
func (s *Store) ListChunks(ctx context.Context, documentID int64) ([]*storage.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.embedding, c.metadata,
		       c.created_at, c.updated_at, d.filename
		FROM document_chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = ?
		ORDER BY c.chunk_index
	`, documentID)
}

// AllChunks returns every vectorized chunk in ID order.
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
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*storage.Chunk //nolint:prealloc
	for rows.Next() {
		var (
			c         storage.Chunk
			embedding []byte
			metaJSON  string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &embedding, &metaJSON,
			&c.CreatedAt, &c.UpdatedAt, &c.Filename); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = bytesToFloat32Slice(embedding)
		if c.Metadata, err = unmarshalMetadata(metaJSON); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// ==================== Helpers ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*storage.Document, error) {
	var (
		doc      storage.Document
		owner    sql.NullString
		metaJSON string
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileType, &doc.FileSize,
		&owner, &metaJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Owner = owner.String
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

func unmarshalMetadata(s string) (storage.Metadata, error) {
	meta := storage.Metadata{}
	if s == "" || s == "null" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	return meta, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// embeddingValue stores empty vectors as NULL.
func embeddingValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return float32SliceToBytes(v)
}

// float32SliceToBytes converts a float32 slice to little-endian bytes.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts little-endian bytes back to a float32 slice.
func bytesToFloat32Slice(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	floats := make([]float32, len(buf)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return floats
}
