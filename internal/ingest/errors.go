package ingest

import (
	"errors"
	"fmt"

	"github.com/bull/docsearch/internal/storage"
)

var (
	// ErrNotFound is returned when a document or its stored file does not exist.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidInput is returned for requests that can never succeed as given.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedType is returned by Upload for disallowed file extensions.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrInvalidInput)
	// ErrFileTooLarge is returned by Upload when the file exceeds the size limit.
	ErrFileTooLarge = fmt.Errorf("%w: file too large", ErrInvalidInput)
	// ErrQueueClosed is returned by Worker.Enqueue after Close.
	ErrQueueClosed = errors.New("worker queue closed")
)
