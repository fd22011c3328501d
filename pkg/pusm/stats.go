package pusm

import "sync/atomic"

// PersistenceStats is a point-in-time snapshot of a PUSM instance's
// running persistence metrics. total_ops always equals successful_ops
// plus failed_ops.
type PersistenceStats struct {
	TotalOps      uint64
	SuccessfulOps uint64
	FailedOps     uint64

	BytesWritten uint64
	BytesRead    uint64

	LastSyncNs       int64
	LastCheckpointNs int64

	AsyncQueueLen int

	// WalTruncated reports that the most recent crash recovery discarded a
	// torn tail from the WAL. It is not a fatal condition; everything
	// before the torn record was replayed normally.
	WalTruncated bool
}

// persistenceCounters holds the live atomics backing PersistenceStats.
// Kept as per-context atomics rather than process-global counters: the
// "global" character of the reference implementation's counters is
// incidental, not required by the semantics.
type persistenceCounters struct {
	totalOps      atomic.Uint64
	successfulOps atomic.Uint64
	failedOps     atomic.Uint64

	bytesWritten atomic.Uint64
	bytesRead    atomic.Uint64

	lastSyncNs       atomic.Int64
	lastCheckpointNs atomic.Int64

	walTruncated atomic.Bool
}

func (c *persistenceCounters) recordOp(ok bool) {
	c.totalOps.Add(1)

	if ok {
		c.successfulOps.Add(1)
	} else {
		c.failedOps.Add(1)
	}
}

func (c *persistenceCounters) addBytesWritten(n int) {
	if n > 0 {
		c.bytesWritten.Add(uint64(n))
	}
}

func (c *persistenceCounters) addBytesRead(n int) {
	if n > 0 {
		c.bytesRead.Add(uint64(n))
	}
}

func (c *persistenceCounters) snapshot(asyncQueueLen int) PersistenceStats {
	return PersistenceStats{
		TotalOps:         c.totalOps.Load(),
		SuccessfulOps:    c.successfulOps.Load(),
		FailedOps:        c.failedOps.Load(),
		BytesWritten:     c.bytesWritten.Load(),
		BytesRead:        c.bytesRead.Load(),
		LastSyncNs:       c.lastSyncNs.Load(),
		LastCheckpointNs: c.lastCheckpointNs.Load(),
		AsyncQueueLen:    asyncQueueLen,
		WalTruncated:     c.walTruncated.Load(),
	}
}
