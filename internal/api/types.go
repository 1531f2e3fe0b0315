package api

import (
	"time"

	"github.com/bull/docsearch/internal/similarity"
	"github.com/bull/docsearch/internal/storage"
)

// DocumentResponse is a document as returned by the API.
type DocumentResponse struct {
	ID          int64            `json:"id"`
	Filename    string           `json:"filename"`
	FilePath    string           `json:"file_path"`
	FileType    string           `json:"file_type"`
	FileSize    int64            `json:"file_size"`
	Owner       string           `json:"user_id,omitempty"`
	Status      string           `json:"status"`
	UploadTime  string           `json:"upload_time,omitempty"`
	Metadata    storage.Metadata `json:"file_metadata"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ChunksCount int              `json:"chunks_count"`
	Chunks      []ChunkResponse  `json:"chunks"`
}

// ChunkResponse is one chunk of a document.
type ChunkResponse struct {
	ID         int64            `json:"id"`
	DocumentID int64            `json:"document_id"`
	Index      int              `json:"chunk_index"`
	Text       string           `json:"chunk_text"`
	Embedding  []float32        `json:"embedding,omitempty"`
	Metadata   storage.Metadata `json:"chunk_metadata"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ListResponse is a page of documents.
type ListResponse struct {
	Items []DocumentResponse `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Size  int                `json:"size"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ChunkID    int64            `json:"chunk_id"`
	ChunkText  string           `json:"chunk_text"`
	Filename   string           `json:"filename"`
	DocumentID int64            `json:"document_id"`
	Similarity float64          `json:"similarity"`
	Metadata   storage.Metadata `json:"metadata"`
}

// ProcessResponse reports a synchronous processing run.
type ProcessResponse struct {
	DocumentID  int64  `json:"document_id"`
	Status      string `json:"status"`
	ChunksCount int    `json:"chunks_count"`
}

// ListQuery holds the list endpoint's query parameters.
type ListQuery struct {
	Page   int    `query:"page" validate:"gte=1"`
	Size   int    `query:"size" validate:"gte=1,lte=100"`
	UserID string `query:"user_id"`
}

// SearchQuery holds the search endpoint's query parameters.
// Unset parameters keep the values they had before parsing.
type SearchQuery struct {
	Q         string  `query:"q" validate:"required"`
	Limit     int     `query:"limit" validate:"gte=1,lte=100"`
	Threshold float64 `query:"threshold" validate:"gte=0,lte=1"`
}

// ReloadRequest is the body of the model reload endpoint.
type ReloadRequest struct {
	Model string `json:"model" validate:"omitempty,max=200"`
}

func newDocumentResponse(doc *storage.Document, chunks []*storage.Chunk) DocumentResponse {
	resp := DocumentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		FilePath:   doc.FilePath,
		FileType:   doc.FileType,
		FileSize:   doc.FileSize,
		Owner:      doc.Owner,
		Status:     string(doc.Status()),
		UploadTime: doc.Metadata.String(storage.MetaUploadTime),
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		Chunks:     make([]ChunkResponse, 0, len(chunks)),
	}
	if resp.Metadata == nil {
		resp.Metadata = storage.Metadata{}
	}
	if n, ok := doc.Metadata.Int(storage.MetaChunksCount); ok {
		resp.ChunksCount = n
	}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, ChunkResponse{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Index:      c.Index,
			Text:       c.Text,
			Embedding:  c.Embedding,
			Metadata:   c.Metadata,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	return resp
}

func newSearchResults(results []similarity.Result) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ChunkID:    r.Chunk.ID,
			ChunkText:  r.Chunk.Text,
			Filename:   r.Chunk.Filename,
			DocumentID: r.Chunk.DocumentID,
			Similarity: r.Score,
			Metadata:   r.Chunk.Metadata,
		})
	}
	return out
}
