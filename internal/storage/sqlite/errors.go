package sqlite

import "errors"

// Sentinel errors returned by the store so callers can map them to HTTP
// statuses with errors.Is.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a uniqueness constraint rejects an insert.
	ErrExists = errors.New("already exists")
)
