// Package mcp exposes the document service as Model Context Protocol tools.
package mcp

import "github.com/bull/docsearch/internal/storage"

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the natural language search text.
	Query string `json:"query" jsonschema:"the text to search for"`
	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
	// Threshold is the minimum cosine similarity, in [-1, 1].
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score for a result (default 0.7)"`
	// UniqueDocuments keeps only the best chunk of each document.
	UniqueDocuments bool `json:"unique_documents,omitempty" jsonschema:"return at most one chunk per document"`
}

// SearchDocumentsOutput contains the ranked chunks.
type SearchDocumentsOutput struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
	// Message provides informational context (e.g., "No matching chunks found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"chunk_text"`
	Similarity float64 `json:"similarity"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
type ListDocumentsInput struct {
	Offset int    `json:"offset,omitempty" jsonschema:"number of documents to skip"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of documents to return (default 10)"`
	Owner  string `json:"user_id,omitempty" jsonschema:"only list documents uploaded by this user"`
}

// ListDocumentsOutput contains one page of documents, newest first.
type ListDocumentsOutput struct {
	Documents []DocumentSummary `json:"documents"`
	Total     int               `json:"total"`
}

// DocumentSummary describes a document without its chunks.
type DocumentSummary struct {
	ID          int64            `json:"id"`
	Filename    string           `json:"filename"`
	FileType    string           `json:"file_type"`
	FileSize    int64            `json:"file_size"`
	Owner       string           `json:"user_id,omitempty"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	ChunksCount int              `json:"chunks_count"`
	UploadTime  string           `json:"upload_time,omitempty"`
	Metadata    storage.Metadata `json:"metadata"`
}

// GetDocumentInput defines the input parameters for the get_document tool.
type GetDocumentInput struct {
	ID            int64 `json:"id" jsonschema:"the document id"`
	IncludeChunks bool  `json:"include_chunks,omitempty" jsonschema:"also return the document's chunk texts"`
}

// GetDocumentOutput contains the document, when found.
type GetDocumentOutput struct {
	Found    bool             `json:"found"`
	Document *DocumentSummary `json:"document,omitempty"`
	Chunks   []ChunkText      `json:"chunks"`
}

// ChunkText is a chunk without its vector.
type ChunkText struct {
	Index int    `json:"chunk_index"`
	Text  string `json:"chunk_text"`
}

// DocumentIDInput identifies a single document.
type DocumentIDInput struct {
	ID int64 `json:"id" jsonschema:"the document id"`
}

// DeleteDocumentOutput reports whether anything was removed.
type DeleteDocumentOutput struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// ProcessDocumentOutput reports a processing run.
type ProcessDocumentOutput struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	ChunksCount int    `json:"chunks_count"`
}

// ModelInfoInput takes no parameters.
type ModelInfoInput struct{}

func newDocumentSummary(doc *storage.Document) DocumentSummary {
	s := DocumentSummary{
		ID:         doc.ID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		FileSize:   doc.FileSize,
		Owner:      doc.Owner,
		Status:     string(doc.Status()),
		Error:      doc.Metadata.String(storage.MetaError),
		UploadTime: doc.Metadata.String(storage.MetaUploadTime),
		Metadata:   doc.Metadata,
	}
	if s.Metadata == nil {
		s.Metadata = storage.Metadata{}
	}
	if n, ok := doc.Metadata.Int(storage.MetaChunksCount); ok {
		s.ChunksCount = n
	}
	return s
}
