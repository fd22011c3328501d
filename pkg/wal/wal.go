package wal

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ultrascale/usm/pkg/storage"
)

// DefaultBufferSize is the default in-memory buffer capacity before a
// flush is forced.
const DefaultBufferSize = 64 * 1024

// WAL is a buffered, append-only write-ahead log over a storage.Backend.
// A single in-memory buffer accumulates encoded records; Flush writes it
// to the backend and resets it. All methods are safe for concurrent use.
type WAL struct {
	mu sync.Mutex

	backend  storage.Backend
	handle   storage.Handle
	path     string
	bufCap   int
	buf      []byte
	checkCRC bool
	closed   bool

	txnSeq atomic.Uint64
}

// Open opens (creating if necessary) the WAL stream at path via backend.
// bufCap <= 0 selects DefaultBufferSize.
func Open(backend storage.Backend, path string, bufCap int, checkCRC bool) (*WAL, error) {
	if bufCap <= 0 {
		bufCap = DefaultBufferSize
	}

	handle, err := backend.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open %q: %w", path, err)
	}

	return &WAL{
		backend:  backend,
		handle:   handle,
		path:     path,
		bufCap:   bufCap,
		buf:      make([]byte, 0, bufCap),
		checkCRC: checkCRC,
	}, nil
}

// NextTransactionID allocates the next monotonic transaction id for this
// WAL's lifetime.
func (w *WAL) NextTransactionID() uint64 {
	return w.txnSeq.Add(1)
}

// Append encodes a record from h, key, and value and appends it to the
// in-memory buffer, flushing first if the buffer lacks room. wal_sequence
// bookkeeping is the caller's concern (NextTransactionID / its own
// counters); Append itself only frames and buffers bytes.
func (w *WAL) Append(h Header, key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	record := Encode(h, key, value)

	if len(w.buf)+len(record) > w.bufCap {
		if err := w.flushLocked(); err != nil {
			return err
		}
	}

	if len(record) > w.bufCap {
		// Record larger than the whole buffer: bypass buffering and write
		// it directly so a single oversized record still succeeds.
		if err := w.backend.WriteBytes(w.handle, record); err != nil {
			return fmt.Errorf("wal: direct write: %w", err)
		}

		return nil
	}

	w.buf = append(w.buf, record...)

	return nil
}

// Flush writes the buffer to the backend and resets it. Flushing an empty
// buffer is a no-op.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if w.closed {
		return ErrClosed
	}

	if len(w.buf) == 0 {
		return nil
	}

	if err := w.backend.WriteBytes(w.handle, w.buf); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}

	w.buf = w.buf[:0]

	return nil
}

// Size flushes any buffered records and returns the WAL stream's current
// length in bytes, suitable for use as a recovery cursor.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return 0, err
	}

	info, err := w.handle.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat: %w", err)
	}

	return info.Size(), nil
}

// Close flushes any remaining buffered records and closes the underlying
// handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	flushErr := w.flushLocked()
	w.closed = true

	closeErr := w.backend.Close(w.handle)
	if flushErr != nil {
		return flushErr
	}

	if closeErr != nil {
		return fmt.Errorf("wal: close: %w", closeErr)
	}

	return nil
}
