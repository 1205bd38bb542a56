package history

import "errors"

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("history: entry not found")

	// ErrInvalidEntry is returned when an entry is missing required fields.
	ErrInvalidEntry = errors.New("history: invalid entry")
)
