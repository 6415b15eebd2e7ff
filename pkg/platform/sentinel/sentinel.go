// Package sentinel holds the facts stores report about rows. Services map
// them to coded domain errors; handlers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed: a unique key (holder+definition, pending requester) is taken.
	ErrAlreadyUsed = errors.New("already used")
	// ErrConflict: the row changed since it was read.
	ErrConflict = errors.New("conflict")
)
