package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// Status is a document's processing state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Metadata keys written by the ingestion pipeline.
const (
	MetaStatus           = "status"
	MetaError            = "error"
	MetaOriginalFilename = "original_filename"
	MetaUploadTime       = "upload_time"
	MetaProcessStart     = "process_start_time"
	MetaProcessEnd       = "process_end_time"
	MetaChunksCount      = "chunks_count"
)

// Metadata is a free-form JSON object stored alongside documents and chunks.
type Metadata map[string]any

// String returns the value under key if it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the value under key as an int.
// JSON round trips turn numbers into float64, so all numeric kinds are accepted.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Clone returns a shallow copy so callers can mutate without touching the original.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is an uploaded file and its processing metadata.
type Document struct {
	ID        int64
	Filename  string // Display name as uploaded
	FilePath  string // Location of the stored file
	FileType  string // Lowercased extension including the dot: ".md"
	FileSize  int64
	Owner     string // Opaque owner tag, empty when unset
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status returns the document's processing status.
func (d *Document) Status() Status {
	return Status(d.Metadata.String(MetaStatus))
}

// Chunk is one segment of a document with its embedding.
type Chunk struct {
	ID         int64
	DocumentID int64
	Index      int       // Position in document (0, 1, 2...)
	Text       string    // Chunk text content
	Embedding  []float32 // Nil when vectorization was skipped
	Metadata   Metadata
	Filename   string // Owning document's filename, filled on reads that join documents
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListOptions controls document listing.
type ListOptions struct {
	Offset int
	Limit  int    // Zero means DefaultListLimit
	Owner  string // Empty lists every owner
}

// DefaultListLimit is the page size used when ListOptions.Limit is unset.
const DefaultListLimit = 10

// FileType returns the lowercased extension of name.
func FileType(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
