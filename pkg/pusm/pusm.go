// Package pusm implements the Persistent Ultra-Scale Map: a USM wrapped
// with durability modes, a write-ahead log, a background async worker,
// checkpoints, and crash recovery.
package pusm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ultrascale/usm/pkg/digest"
	"github.com/ultrascale/usm/pkg/storage"
	"github.com/ultrascale/usm/pkg/usm"
	"github.com/ultrascale/usm/pkg/wal"
)

// PUSM wraps a usm.Map with durability. The in-memory map is authoritative
// for reads that hit; the storage backend is authoritative for reads that
// miss and for reconstruction after crash.
type PUSM struct {
	id     uuid.UUID
	config Config

	m       *usm.Map
	backend storage.Backend
	log     *wal.WAL

	lockTimeout time.Duration

	persistenceLock sync.RWMutex
	checkpointMutex sync.Mutex

	asyncQueueMutex sync.Mutex
	asyncQueue      []asyncOp
	wake            chan struct{}

	counters persistenceCounters

	shuttingDown atomic.Bool
	shutdownCh   chan struct{}
	workerDone   chan struct{}
}

// Open constructs a PUSM per cfg. When cfg.Mode is Disabled, the WAL and
// background worker are never started and PUSM behaves as a pure USM.
// When cfg.EnableCrashRecovery is set and persistence is enabled, Open
// replays the storage backend and WAL before returning.
func Open(cfg Config) (*PUSM, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Mode == "" {
		cfg.Mode = Disabled
	}

	p := &PUSM{
		id:          uuid.New(),
		config:      cfg,
		m:           usm.New(usm.Config{InitialBucketCapacity: cfg.InitialBucketCapacity, MaxMemoryBytes: cfg.MaxMemoryBytes}),
		lockTimeout: time.Duration(cfg.LockTimeoutMs) * time.Millisecond,
		wake:        make(chan struct{}, 1),
		shutdownCh:  make(chan struct{}),
		workerDone:  make(chan struct{}),
	}

	if cfg.Mode == Disabled {
		close(p.workerDone)
		return p, nil
	}

	backend := storage.NewFileBackend(storage.NewReal())
	p.backend = backend

	if err := backend.CreateContainer(cfg.StoragePath); err != nil {
		return nil, fmt.Errorf("pusm: create storage container: %w: %w", ErrBackendError, err)
	}

	log, err := wal.Open(backend, cfg.WalPath, 0, cfg.EnableChecksums)
	if err != nil {
		return nil, fmt.Errorf("pusm: open wal: %w: %w", ErrBackendError, err)
	}

	p.log = log

	if cfg.EnableCrashRecovery {
		if err := p.recover(); err != nil {
			return nil, err
		}
	}

	go p.runWorker()

	return p, nil
}

// ID returns the PUSM's unique identifier.
func (p *PUSM) ID() uuid.UUID {
	return p.id
}

func (p *PUSM) persistenceEnabled() bool {
	return p.config.Mode != Disabled
}

func (p *PUSM) rlock() error {
	if !acquireWithTimeout(p.persistenceLock.TryRLock, p.lockTimeout) {
		return ErrLockTimeout
	}

	return nil
}

func (p *PUSM) lock() error {
	if !acquireWithTimeout(p.persistenceLock.TryLock, p.lockTimeout) {
		return ErrLockTimeout
	}

	return nil
}

// shouldSync decides whether a mutation must be persisted inline before
// the call returns, per the configured durability mode.
func (p *PUSM) shouldSync(forceSync bool, typeTag usm.ValueType) bool {
	if forceSync {
		return true
	}

	switch p.config.Mode {
	case Sync:
		return true
	case Hybrid:
		return typeTag == usm.NumericBlob
	default:
		return false
	}
}

// PutPersistent inserts or replaces key's value in the underlying map and,
// if persistence is enabled, makes the mutation durable per the
// configured mode.
func (p *PUSM) PutPersistent(key, value []byte, typeTag usm.ValueType, forceSync bool) error {
	if p.shuttingDown.Load() {
		return ErrShutdown
	}

	if err := p.rlock(); err != nil {
		return err
	}
	defer p.persistenceLock.RUnlock()

	if err := p.m.Put(key, value, typeTag); err != nil {
		p.counters.recordOp(false)
		return translateUSMError(err)
	}

	if !p.persistenceEnabled() {
		p.counters.recordOp(true)
		return nil
	}

	h := wal.Header{
		TransactionID: p.log.NextTransactionID(),
		TimestampNs:   time.Now().UnixNano(),
		OpKind:        wal.OpPut,
		ValueTypeTag:  byte(typeTag),
	}

	if err := p.log.Append(h, key, value); err != nil {
		p.counters.recordOp(false)
		return fmt.Errorf("pusm: append put record: %w: %w", ErrBackendError, err)
	}

	if p.shouldSync(forceSync, typeTag) {
		if err := p.flushPut(key, value, byte(typeTag)); err != nil {
			p.counters.recordOp(false)
			return err
		}

		p.counters.recordOp(true)
		return nil
	}

	p.enqueue(asyncOp{
		opKind:       wal.OpPut,
		key:          cloneBytes(key),
		value:        cloneBytes(value),
		valueType:    byte(typeTag),
		enqueuedAtNs: time.Now().UnixNano(),
	})
	p.counters.recordOp(true)

	return nil
}

// GetPersistent consults the in-memory map first. On miss, if persistence
// is enabled, it consults the storage backend and, on hit, writes the
// entry through into the in-memory map before returning it.
func (p *PUSM) GetPersistent(key []byte) ([]byte, usm.ValueType, error) {
	if p.shuttingDown.Load() {
		return nil, 0, ErrShutdown
	}

	value, typeTag, err := p.m.Get(key)
	if err == nil {
		return value, typeTag, nil
	}

	if !errors.Is(err, usm.ErrKeyNotFound) {
		return nil, 0, translateUSMError(err)
	}

	if !p.persistenceEnabled() {
		return nil, 0, ErrKeyNotFound
	}

	if err := p.rlock(); err != nil {
		return nil, 0, err
	}
	defer p.persistenceLock.RUnlock()

	addr := digest.AddressOf(key)
	path := storage.EntryPath(p.config.StoragePath, addr)

	exists, err := p.backend.EntryExists(path)
	if err != nil {
		return nil, 0, fmt.Errorf("pusm: probe backend: %w: %w", ErrBackendError, err)
	}

	if !exists {
		return nil, 0, ErrKeyNotFound
	}

	h, err := p.backend.OpenReadWrite(path)
	if err != nil {
		return nil, 0, fmt.Errorf("pusm: open backend entry: %w: %w", ErrBackendError, err)
	}

	data, err := p.backend.ReadBytes(h)
	_ = p.backend.Close(h)

	if err != nil {
		return nil, 0, fmt.Errorf("pusm: read backend entry: %w: %w", ErrBackendError, err)
	}

	storedKey, tag, storedValue, err := storage.DeserializeEntry(data)
	if err != nil {
		return nil, 0, fmt.Errorf("pusm: decode backend entry: %w: %w", ErrBackendError, err)
	}

	p.counters.addBytesRead(len(storedKey) + len(storedValue))

	// Write-through: repopulate the in-memory map so the next hit is fast.
	// usm.Map validates length bounds again; a backend entry that fails
	// validation here indicates external corruption and is surfaced as-is
	// rather than silently dropped.
	if err := p.m.Put(storedKey, storedValue, usm.ValueType(tag)); err != nil {
		return nil, 0, translateUSMError(err)
	}

	return storedValue, usm.ValueType(tag), nil
}

// RemovePersistent deletes key from the underlying map and, if persistence
// is enabled, appends a WAL Remove record under the same sync/async
// policy as PutPersistent.
func (p *PUSM) RemovePersistent(key []byte, forceSync bool) error {
	if p.shuttingDown.Load() {
		return ErrShutdown
	}

	if err := p.rlock(); err != nil {
		return err
	}
	defer p.persistenceLock.RUnlock()

	if err := p.m.Remove(key); err != nil {
		p.counters.recordOp(false)
		return translateUSMError(err)
	}

	if !p.persistenceEnabled() {
		p.counters.recordOp(true)
		return nil
	}

	h := wal.Header{
		TransactionID: p.log.NextTransactionID(),
		TimestampNs:   time.Now().UnixNano(),
		OpKind:        wal.OpRemove,
	}

	if err := p.log.Append(h, key, nil); err != nil {
		p.counters.recordOp(false)
		return fmt.Errorf("pusm: append remove record: %w: %w", ErrBackendError, err)
	}

	if p.shouldSync(forceSync, usm.OpaqueBlob) {
		if err := p.flushRemove(key); err != nil {
			p.counters.recordOp(false)
			return err
		}

		p.counters.recordOp(true)
		return nil
	}

	p.enqueue(asyncOp{
		opKind:       wal.OpRemove,
		key:          cloneBytes(key),
		enqueuedAtNs: time.Now().UnixNano(),
	})
	p.counters.recordOp(true)

	return nil
}

// ContainsPersistent consults the in-memory map; on miss, if persistence
// is enabled, it probes the backend with a read-only existence check. No
// write-through occurs.
func (p *PUSM) ContainsPersistent(key []byte) (bool, error) {
	if p.shuttingDown.Load() {
		return false, ErrShutdown
	}

	ok, err := p.m.Contains(key)
	if err != nil {
		return false, translateUSMError(err)
	}

	if ok {
		return true, nil
	}

	if !p.persistenceEnabled() {
		return false, nil
	}

	if err := p.rlock(); err != nil {
		return false, err
	}
	defer p.persistenceLock.RUnlock()

	addr := digest.AddressOf(key)
	path := storage.EntryPath(p.config.StoragePath, addr)

	exists, err := p.backend.EntryExists(path)
	if err != nil {
		return false, fmt.Errorf("pusm: probe backend: %w: %w", ErrBackendError, err)
	}

	return exists, nil
}

// ClearPersistent clears the underlying map and, if persistence is
// enabled, appends and flushes a Clear WAL record and deletes every backend
// entry file, all under the write lock.
func (p *PUSM) ClearPersistent(forceSync bool) error {
	if p.shuttingDown.Load() {
		return ErrShutdown
	}

	if err := p.lock(); err != nil {
		return err
	}
	defer p.persistenceLock.Unlock()

	p.m.Clear()

	if !p.persistenceEnabled() {
		p.counters.recordOp(true)
		return nil
	}

	h := wal.Header{
		TransactionID: p.log.NextTransactionID(),
		TimestampNs:   time.Now().UnixNano(),
		OpKind:        wal.OpClear,
	}

	if err := p.log.Append(h, nil, nil); err != nil {
		p.counters.recordOp(false)
		return fmt.Errorf("pusm: append clear record: %w: %w", ErrBackendError, err)
	}

	if err := p.log.Flush(); err != nil {
		p.counters.recordOp(false)
		return fmt.Errorf("pusm: flush clear record: %w: %w", ErrBackendError, err)
	}

	paths, err := p.backend.ListEntries(p.config.StoragePath)
	if err != nil {
		p.counters.recordOp(false)
		return fmt.Errorf("pusm: list backend entries: %w: %w", ErrBackendError, err)
	}

	for _, path := range paths {
		if err := p.backend.RemoveEntry(path); err != nil {
			p.counters.recordOp(false)
			return fmt.Errorf("pusm: remove backend entry: %w: %w", ErrBackendError, err)
		}
	}

	p.counters.recordOp(true)

	return nil
}

// Stats returns a snapshot of the PUSM's running persistence metrics.
func (p *PUSM) Stats() PersistenceStats {
	p.asyncQueueMutex.Lock()
	qlen := len(p.asyncQueue)
	p.asyncQueueMutex.Unlock()

	return p.counters.snapshot(qlen)
}

// flushPut flushes the WAL (the Put record for key was already appended by
// the caller, inline at call time) and writes the entry through to the
// storage backend under its address-derived path. Called both for an
// inline Sync/Hybrid put and, later, for an Async put drained from the
// queue — the WAL append already happened either way.
func (p *PUSM) flushPut(key, value []byte, typeTag byte) error {
	if err := p.log.Flush(); err != nil {
		return fmt.Errorf("pusm: flush put record: %w: %w", ErrBackendError, err)
	}

	addr := digest.AddressOf(key)
	path := storage.EntryPath(p.config.StoragePath, addr)

	eh, err := p.backend.OpenReadWrite(path)
	if err != nil {
		return fmt.Errorf("pusm: open backend entry: %w: %w", ErrBackendError, err)
	}

	encoded := storage.SerializeEntry(key, typeTag, value)

	writeErr := p.backend.WriteBytes(eh, encoded)
	closeErr := p.backend.Close(eh)

	if writeErr != nil {
		return fmt.Errorf("pusm: write backend entry: %w: %w", ErrBackendError, writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("pusm: close backend entry: %w: %w", ErrBackendError, closeErr)
	}

	p.counters.addBytesWritten(len(key) + len(value))

	return nil
}

// flushRemove flushes the WAL (the Remove record for key was already
// appended by the caller, inline at call time) and deletes the backend's
// per-key entry file outright. Recovery's backend scan only sees what
// ListEntries reports, so a stale entry file left behind would resurrect a
// removed key after a crash; deleting it keeps the two stages consistent.
func (p *PUSM) flushRemove(key []byte) error {
	if err := p.log.Flush(); err != nil {
		return fmt.Errorf("pusm: flush remove record: %w: %w", ErrBackendError, err)
	}

	addr := digest.AddressOf(key)
	path := storage.EntryPath(p.config.StoragePath, addr)

	exists, err := p.backend.EntryExists(path)
	if err != nil {
		return fmt.Errorf("pusm: probe backend entry: %w: %w", ErrBackendError, err)
	}

	if !exists {
		return nil
	}

	if err := p.backend.RemoveEntry(path); err != nil {
		return fmt.Errorf("pusm: remove backend entry: %w: %w", ErrBackendError, err)
	}

	return nil
}

func translateUSMError(err error) error {
	switch {
	case errors.Is(err, usm.ErrInvalidKey):
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	case errors.Is(err, usm.ErrInvalidValue):
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	case errors.Is(err, usm.ErrKeyNotFound):
		return fmt.Errorf("%w: %w", ErrKeyNotFound, err)
	case errors.Is(err, usm.ErrCapacityExceeded):
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	case errors.Is(err, usm.ErrOutOfMemory):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	default:
		return err
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}
