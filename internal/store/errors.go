package store

import "errors"

// Errors returned by store operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, store.ErrCorrupt) {
//	    // log and reset the key rather than crash
//	}
var (
	// ErrNotFound is returned when no value is stored under a key.
	ErrNotFound = errors.New("key not found")

	// ErrWrite is returned when a value cannot be serialized or persisted.
	// No partial write is performed.
	ErrWrite = errors.New("storage write failed")

	// ErrCorrupt is returned when a stored value cannot be decoded as the
	// expected type. The raw value is left in place so the caller can
	// decide whether to reset the key.
	ErrCorrupt = errors.New("stored value is corrupt")
)
