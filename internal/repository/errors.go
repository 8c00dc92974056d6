package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint (email, domain,
	// namespace) rejects an insert. The API maps it to 409.
	ErrDuplicate = errors.New("duplicate")
)
