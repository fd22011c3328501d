package storage

import "errors"

// ErrNotFound reports that a requested entry does not exist in the backend.
// FileBackend never returns it: OpenReadWrite creates a missing entry file,
// and EntryExists reports absence as false.
var ErrNotFound = errors.New("storage: not found")

// Handle is an open backend resource: either the append-only WAL stream or
// a random-access per-entry file.
type Handle interface {
	File
}

// Backend is the storage adapter contract PUSM requires from external
// storage. It is the only interface the persistence layer depends on;
// everything above it (WAL framing, entry serialization) is backend-agnostic.
type Backend interface {
	// CreateContainer ensures storagePath exists and is ready to hold
	// entries. Idempotent.
	CreateContainer(storagePath string) error

	// OpenAppend opens walPath for append-only writes, creating it if
	// necessary.
	OpenAppend(walPath string) (Handle, error)

	// OpenReadWrite opens a handle for random access to a single entry's
	// backing file, creating it if necessary.
	OpenReadWrite(entryPath string) (Handle, error)

	// WriteBytes writes data from the start of h's file (a handle from
	// OpenAppend still writes at the end) and syncs it. Bytes already in
	// the file beyond len(data) are not truncated.
	WriteBytes(h Handle, data []byte) error

	// ReadBytes reads the entirety of h's current content from the start.
	// It never returns ErrNotFound (a held handle always refers to an
	// existing file).
	ReadBytes(h Handle) ([]byte, error)

	// ListEntries enumerates entry paths under storagePath.
	ListEntries(storagePath string) ([]string, error)

	// EntryExists reports whether entryPath already exists, without
	// creating it. Used for contains_persistent's read-only probe.
	EntryExists(entryPath string) (bool, error)

	// RemoveEntry deletes entryPath. Removing a path that does not exist
	// is not an error.
	RemoveEntry(entryPath string) error

	// Close releases h.
	Close(h Handle) error
}
