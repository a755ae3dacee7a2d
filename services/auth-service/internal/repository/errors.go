package repository

import "errors"

var (
	// ErrNotFound is returned when no document matches the given ID or filter.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateKey is returned when an insert violates a unique index.
	// Callers racing on find-or-create treat this as "someone else won" and re-fetch.
	ErrDuplicateKey = errors.New("duplicate key")
)
