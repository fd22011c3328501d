package pusm_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/pusm"
	"github.com/ultrascale/usm/pkg/usm"
)

func newTestConfig(t *testing.T, mode pusm.Mode) pusm.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := pusm.DefaultConfig()
	cfg.Mode = mode
	cfg.StoragePath = dir
	cfg.WalPath = filepath.Join(dir, "wal.log")
	cfg.SyncIntervalMs = 20
	cfg.CheckpointIntervalMs = 0

	return cfg
}

func TestDisabledMode_BehavesAsPureMap(t *testing.T) {
	cfg := pusm.DefaultConfig()

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("k"), []byte("v"), usm.OpaqueBlob, false))

	value, _, err := instance.GetPersistent([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	stats := instance.Stats()
	require.Zero(t, stats.BytesWritten)
}

func TestSyncMode_PersistsEntryFileImmediately(t *testing.T) {
	cfg := newTestConfig(t, pusm.Sync)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("k"), []byte("v"), usm.OpaqueBlob, false))

	ok, err := instance.ContainsPersistent([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	stats := instance.Stats()
	require.Equal(t, uint64(2), stats.BytesWritten) // 1-byte key + 1-byte value
}

func TestAsyncMode_EventuallyPersists(t *testing.T) {
	cfg := newTestConfig(t, pusm.Async)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("k"), []byte("v"), usm.OpaqueBlob, false))

	require.NoError(t, instance.SyncToStorage())

	ok, err := instance.ContainsPersistent([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return instance.Stats().BytesWritten == 2 // 1-byte key + 1-byte value
	}, time.Second, 10*time.Millisecond)
}

func TestAsyncMode_WorkerDrainsWithoutExplicitSync(t *testing.T) {
	cfg := newTestConfig(t, pusm.Async)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("k"), []byte("v"), usm.OpaqueBlob, false))

	require.Eventually(t, func() bool {
		ok, err := instance.ContainsPersistent([]byte("k"))
		return err == nil && ok && instance.Stats().BytesWritten == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHybridMode_SyncsNumericBlobOnly(t *testing.T) {
	cfg := newTestConfig(t, pusm.Hybrid)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("num"), []byte{1, 2, 3, 4}, usm.NumericBlob, false))

	ok, err := instance.ContainsPersistent([]byte("num"))
	require.NoError(t, err)
	require.True(t, ok)
	// 3-byte key + 4-byte value, written to the backend before PutPersistent returned.
	require.Equal(t, uint64(7), instance.Stats().BytesWritten, "numeric values must be synced inline under hybrid mode")

	require.NoError(t, instance.PutPersistent([]byte("blob"), []byte{5}, usm.OpaqueBlob, false))
	require.NoError(t, instance.SyncToStorage())

	ok, err = instance.ContainsPersistent([]byte("blob"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGetPersistent_WriteThroughOnBackendHit(t *testing.T) {
	cfg := newTestConfig(t, pusm.Sync)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)

	require.NoError(t, instance.PutPersistent([]byte("k"), []byte("v"), usm.OpaqueBlob, false))
	require.NoError(t, instance.Close())

	reopened, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	value, typeTag, err := reopened.GetPersistent([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
	require.Equal(t, usm.OpaqueBlob, typeTag)
}

func TestCheckpointThenRecovery_RestoresAllEntries(t *testing.T) {
	cfg := newTestConfig(t, pusm.Async)
	cfg.EnableCrashRecovery = true

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		require.NoError(t, instance.PutPersistent(key, []byte("v"), usm.OpaqueBlob, false))
	}

	require.NoError(t, instance.CreateCheckpoint())

	for i := 100; i < 150; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		require.NoError(t, instance.PutPersistent(key, []byte("v"), usm.OpaqueBlob, false))
	}

	require.NoError(t, instance.SyncToStorage())

	// instance is deliberately left open (not Close'd) here to simulate an
	// unclean shutdown; everything durable as of the SyncToStorage call
	// above is already on disk for recovery to find.

	recovered, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer recovered.Close()

	for i := 0; i < 150; i++ {
		key := []byte{byte(i), byte(i >> 8)}

		ok, err := recovered.ContainsPersistent(key)
		require.NoError(t, err)
		require.True(t, ok, "key %d should have survived recovery", i)
	}
}

func TestClearPersistent_RemovesEverythingUnderWriteLock(t *testing.T) {
	cfg := newTestConfig(t, pusm.Sync)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("a"), []byte("1"), usm.OpaqueBlob, false))
	require.NoError(t, instance.PutPersistent([]byte("b"), []byte("2"), usm.OpaqueBlob, false))

	require.NoError(t, instance.ClearPersistent(false))

	_, _, err = instance.GetPersistent([]byte("a"))
	require.ErrorIs(t, err, pusm.ErrKeyNotFound)
}

func TestStats_TotalOpsEqualsSuccessfulPlusFailed(t *testing.T) {
	cfg := newTestConfig(t, pusm.Sync)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.PutPersistent([]byte("a"), []byte("1"), usm.OpaqueBlob, false))
	require.Error(t, instance.PutPersistent([]byte("a"), nil, usm.OpaqueBlob, false))

	stats := instance.Stats()
	require.Equal(t, stats.SuccessfulOps+stats.FailedOps, stats.TotalOps)
}

func TestClosedInstance_RejectsFurtherOperations(t *testing.T) {
	cfg := newTestConfig(t, pusm.Sync)

	instance, err := pusm.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, instance.Close())
	require.NoError(t, instance.Close()) // idempotent

	err = instance.PutPersistent([]byte("a"), []byte("1"), usm.OpaqueBlob, false)
	require.ErrorIs(t, err, pusm.ErrShutdown)
}
