package storage

import "errors"

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps failed writes.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnreachable is returned when the database cannot be reached at startup.
	ErrUnreachable = errors.New("database unreachable")
)
