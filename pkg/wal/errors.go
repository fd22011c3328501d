package wal

import "errors"

var (
	// ErrCorrupt reports a record whose magic or CRC-32 does not verify.
	// Callers should use errors.Is(err, ErrCorrupt).
	ErrCorrupt = errors.New("wal: corrupt record")

	// ErrClosed reports an operation attempted on a closed WAL.
	ErrClosed = errors.New("wal: closed")
)
