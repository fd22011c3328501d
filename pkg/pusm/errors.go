package pusm

import "errors"

// Error classification codes (closed set), matching usm's set plus the
// persistence-layer-specific members.
var (
	// ErrInvalidKey reports an empty, too long, or otherwise policy-rejected key.
	ErrInvalidKey = errors.New("pusm: invalid key")
	// ErrInvalidValue reports an oversized or zero-length value.
	ErrInvalidValue = errors.New("pusm: invalid value")
	// ErrKeyNotFound reports that no entry exists for the given key, in
	// either the in-memory map or (when persistence is enabled) the backend.
	ErrKeyNotFound = errors.New("pusm: key not found")
	// ErrCapacityExceeded reports a full bucket array.
	ErrCapacityExceeded = errors.New("pusm: capacity exceeded")
	// ErrOutOfMemory reports an allocation failure.
	ErrOutOfMemory = errors.New("pusm: out of memory")
	// ErrLockTimeout reports that persistence_lock could not be acquired
	// within config.lock_timeout_ms. Waits on checkpoint_mutex and on the
	// WAL's own mutex are not bounded and never produce this error.
	ErrLockTimeout = errors.New("pusm: lock timeout")
	// ErrBackendError is an opaque wrapping of a storage backend failure.
	ErrBackendError = errors.New("pusm: backend error")
	// ErrWalCorruption is reported only during recovery.
	ErrWalCorruption = errors.New("pusm: wal corruption")
	// ErrShutdown reports an operation attempted after Close.
	ErrShutdown = errors.New("pusm: shutdown")
)
