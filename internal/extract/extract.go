// Package extract turns stored files into plain text for chunking.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for file formats that have no extractor.
var ErrUnsupported = errors.New("unsupported file format")

// Result is the text of a file plus anything learned while reading it.
type Result struct {
	Text     string
	Metadata map[string]any // Merged into the document's metadata
}

// Extractor reads one file format.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (*Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (*Result, error) {
	return f(ctx, path)
}

// Registry dispatches on the lowercased file extension.
// Unknown extensions are read as plain text.
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry returns a registry with the built-in extractors.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]Extractor),
		fallback: ExtractorFunc(PlainText),
	}
	r.Register(".txt", ExtractorFunc(PlainText))
	md := NewMarkdown()
	r.Register(".md", md)
	r.Register(".markdown", md)
	r.Register(".pdf", NewPDF())
	r.Register(".docx", ExtractorFunc(Docx))
	r.Register(".doc", ExtractorFunc(func(context.Context, string) (*Result, error) {
		return nil, fmt.Errorf("%w: legacy .doc files must be converted to .docx", ErrUnsupported)
	}))
	return r
}

// Register sets the extractor for ext (with leading dot).
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Extract reads path with the extractor registered for its extension.
func (r *Registry) Extract(ctx context.Context, path string) (*Result, error) {
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		e = r.fallback
	}
	return e.Extract(ctx, path)
}

// PlainText reads a UTF-8 text file.
func PlainText(_ context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", filepath.Base(path))
	}
	return &Result{Text: string(data)}, nil
}
