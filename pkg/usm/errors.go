package usm

import "errors"

// Error classification codes (closed set).
//
// Callers MUST classify errors using errors.Is; implementations MAY wrap
// these with additional context via fmt.Errorf("...: %w", ErrX).
var (
	// ErrInvalidKey reports an empty, too long, or otherwise policy-rejected key.
	ErrInvalidKey = errors.New("usm: invalid key")
	// ErrInvalidValue reports an oversized or zero-length value.
	ErrInvalidValue = errors.New("usm: invalid value")
	// ErrKeyNotFound reports that no entry exists for the given key.
	ErrKeyNotFound = errors.New("usm: key not found")
	// ErrCapacityExceeded reports a full bucket array on insertion of a new bucket.
	ErrCapacityExceeded = errors.New("usm: capacity exceeded")
	// ErrOutOfMemory reports an allocation failure while constructing an entry.
	ErrOutOfMemory = errors.New("usm: out of memory")
)
