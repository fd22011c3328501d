package pusm

import (
	"errors"
	"fmt"
	"log"

	"github.com/ultrascale/usm/pkg/storage"
	"github.com/ultrascale/usm/pkg/usm"
	"github.com/ultrascale/usm/pkg/wal"
)

// recover reconstructs in-memory state after an unclean shutdown. Stage
// one loads every entry file the storage backend holds unconditionally,
// since every backend entry is durable as of its last write-through.
// Stage two replays the WAL from the last checkpoint's recorded byte
// offset forward (or from the start if no checkpoint manifest exists),
// applying ops in sequence; a torn tail at the end of the WAL is expected
// after a crash mid-write and is not an error.
func (p *PUSM) recover() error {
	if err := p.recoverFromBackend(); err != nil {
		return err
	}

	return p.recoverFromWAL()
}

func (p *PUSM) recoverFromBackend() error {
	paths, err := p.backend.ListEntries(p.config.StoragePath)
	if err != nil {
		return fmt.Errorf("pusm: list backend entries during recovery: %w: %w", ErrBackendError, err)
	}

	for _, path := range paths {
		h, err := p.backend.OpenReadWrite(path)
		if err != nil {
			return fmt.Errorf("pusm: open backend entry %q during recovery: %w: %w", path, ErrBackendError, err)
		}

		data, err := p.backend.ReadBytes(h)
		closeErr := p.backend.Close(h)

		if err != nil {
			return fmt.Errorf("pusm: read backend entry %q during recovery: %w: %w", path, ErrBackendError, err)
		}

		if closeErr != nil {
			return fmt.Errorf("pusm: close backend entry %q during recovery: %w: %w", path, ErrBackendError, closeErr)
		}

		key, typeTag, value, err := storage.DeserializeEntry(data)
		if err != nil {
			// A partially written entry file from a crash mid-write-through;
			// skip it, the WAL replay below will have the authoritative copy
			// if the mutation that produced it committed.
			continue
		}

		if err := p.m.Put(key, value, usm.ValueType(typeTag)); err != nil {
			return fmt.Errorf("pusm: replay backend entry into map: %w", err)
		}
	}

	return nil
}

func (p *PUSM) recoverFromWAL() error {
	manifest, hasCheckpoint, err := readCheckpointManifest(checkpointManifestPath(p.config.StoragePath))
	if err != nil {
		return err
	}

	full, err := readFullWAL(p.backend, p.config.WalPath)
	if err != nil {
		return err
	}

	from := int64(0)
	if hasCheckpoint && manifest.WalOffset <= int64(len(full)) {
		from = manifest.WalOffset
	}

	records, truncated := wal.Replay(full[from:], p.config.EnableChecksums)
	if truncated {
		p.counters.walTruncated.Store(true)
		log.Printf("pusm: wal replay stopped at a torn tail during recovery, %d records applied", len(records))
	}

	for _, rec := range records {
		switch rec.Header.OpKind {
		case wal.OpPut:
			if err := p.m.Put(rec.Key, rec.Value, usm.ValueType(rec.Header.ValueTypeTag)); err != nil {
				return fmt.Errorf("pusm: replay wal put: %w", err)
			}
		case wal.OpRemove:
			if err := p.m.Remove(rec.Key); err != nil {
				if errors.Is(err, usm.ErrKeyNotFound) {
					// A remove replayed against a key the backend scan never
					// populated (e.g. it was removed before any checkpoint
					// and the entry file was already deleted) is expected,
					// not an error.
					continue
				}

				return fmt.Errorf("pusm: replay wal remove: %w", err)
			}
		case wal.OpClear:
			p.m.Clear()
		case wal.OpCheckpoint:
			// Marker only; the manifest already carries the cursor this
			// record corresponds to.
		}
	}

	return nil
}

func readFullWAL(backend storage.Backend, path string) ([]byte, error) {
	exists, err := backend.EntryExists(path)
	if err != nil {
		return nil, fmt.Errorf("pusm: probe wal during recovery: %w: %w", ErrBackendError, err)
	}

	if !exists {
		return nil, nil
	}

	h, err := backend.OpenReadWrite(path)
	if err != nil {
		return nil, fmt.Errorf("pusm: open wal during recovery: %w: %w", ErrBackendError, err)
	}

	data, err := backend.ReadBytes(h)
	closeErr := backend.Close(h)

	if err != nil {
		return nil, fmt.Errorf("pusm: read wal during recovery: %w: %w", ErrBackendError, err)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("pusm: close wal during recovery: %w: %w", ErrBackendError, closeErr)
	}

	return data, nil
}
