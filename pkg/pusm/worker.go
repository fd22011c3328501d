package pusm

import (
	"log"
	"time"

	"github.com/ultrascale/usm/pkg/wal"
)

// enqueue appends op to the async queue and wakes the worker. Called with
// persistence_lock already held for read by the caller (PutPersistent /
// RemovePersistent); the queue has its own leaf-level mutex so the worker
// can drain independently of persistence_lock's holders.
func (p *PUSM) enqueue(op asyncOp) {
	p.asyncQueueMutex.Lock()
	p.asyncQueue = append(p.asyncQueue, op)
	p.asyncQueueMutex.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// runWorker drains the async queue on every wake signal and on a
// sync_interval_ms tick, and fires a checkpoint on checkpoint_interval_ms.
// It exits once shuttingDown is set, after a final drain.
func (p *PUSM) runWorker() {
	defer close(p.workerDone)

	syncInterval := time.Duration(p.config.SyncIntervalMs) * time.Millisecond
	if syncInterval <= 0 {
		syncInterval = time.Second
	}

	checkpointInterval := time.Duration(p.config.CheckpointIntervalMs) * time.Millisecond

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	lastCheckpoint := time.Now()

	for {
		select {
		case <-p.wake:
			p.drainOnce()
		case <-ticker.C:
			p.drainOnce()

			if checkpointInterval > 0 && time.Since(lastCheckpoint) >= checkpointInterval {
				_ = p.CreateCheckpoint()
				lastCheckpoint = time.Now()
			}
		case <-p.shutdownCh:
			p.drainOnce()
			return
		}
	}
}

// drainOnce flushes the WAL and writes the backend entry for every op
// currently queued, in FIFO order. The WAL record for each op was already
// appended inline by PutPersistent/RemovePersistent at call time; this is
// only the deferred flush-and-backend-write half of an async mutation. A
// backend error does not stop the worker or the remaining ops in the
// batch: it is logged and counted as a failed op, and the mutation stays
// durable in the WAL for the next recovery pass to pick up.
func (p *PUSM) drainOnce() {
	p.asyncQueueMutex.Lock()
	ops := p.asyncQueue
	p.asyncQueue = nil
	p.asyncQueueMutex.Unlock()

	if len(ops) == 0 {
		return
	}

	p.persistenceLock.RLock()
	defer p.persistenceLock.RUnlock()

	for _, op := range ops {
		var err error

		switch op.opKind {
		case wal.OpPut:
			err = p.flushPut(op.key, op.value, op.valueType)
		case wal.OpRemove:
			err = p.flushRemove(op.key)
		}

		if err != nil {
			log.Printf("pusm: async worker: %v", err)
		}

		p.counters.recordOp(err == nil)
	}
}

// SyncToStorage flushes the WAL and forces an immediate drain of any
// pending async-mode operations, regardless of durability mode.
func (p *PUSM) SyncToStorage() error {
	if p.shuttingDown.Load() {
		return ErrShutdown
	}

	if !p.persistenceEnabled() {
		return nil
	}

	p.drainOnce()

	if err := p.log.Flush(); err != nil {
		return ErrBackendError
	}

	p.counters.lastSyncNs.Store(time.Now().UnixNano())

	return nil
}

// Close stops the background worker (draining any remaining async ops),
// flushes the WAL, and releases the storage backend handle. Close is
// idempotent.
func (p *PUSM) Close() error {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	if !p.persistenceEnabled() {
		return nil
	}

	close(p.shutdownCh)
	<-p.workerDone

	if err := p.log.Close(); err != nil {
		return ErrBackendError
	}

	return nil
}
