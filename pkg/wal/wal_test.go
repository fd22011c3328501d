package wal_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/storage"
	"github.com/ultrascale/usm/pkg/wal"
)

func openTestWAL(t *testing.T, bufCap int) (*wal.WAL, storage.Backend, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	backend := storage.NewFileBackend(storage.NewReal())

	w, err := wal.Open(backend, path, bufCap, true)
	require.NoError(t, err)

	return w, backend, path
}

func TestWAL_AppendFlushReplay(t *testing.T) {
	w, backend, path := openTestWAL(t, wal.DefaultBufferSize)

	txn := w.NextTransactionID()
	require.NoError(t, w.Append(wal.Header{
		TransactionID: txn,
		TimestampNs:   1,
		OpKind:        wal.OpPut,
		ValueTypeTag:  0,
	}, []byte("k"), []byte{0x42}))

	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	h, err := backend.OpenAppend(path)
	require.NoError(t, err)

	data, err := backend.ReadBytes(h)
	require.NoError(t, err)
	require.NoError(t, backend.Close(h))

	records, truncated := wal.Replay(data, true)
	require.False(t, truncated)
	require.Len(t, records, 1)
	require.Equal(t, []byte("k"), records[0].Key)
	require.Equal(t, []byte{0x42}, records[0].Value)
	require.Equal(t, wal.OpPut, records[0].Header.OpKind)
}

func TestWAL_CRCCoversHeaderWithoutCRCField(t *testing.T) {
	record := wal.Encode(wal.Header{TransactionID: 1, TimestampNs: 2, OpKind: wal.OpPut}, []byte("k"), []byte{1, 2, 3})

	records, truncated := wal.Replay(record, true)
	require.False(t, truncated)
	require.Len(t, records, 1)

	corrupted := append([]byte{}, record...)
	corrupted[20] ^= 0xFF // op_kind, inside the CRC-covered range [0, 36)

	records, truncated = wal.Replay(corrupted, true)
	require.True(t, truncated)
	require.Empty(t, records)
}

func TestWAL_TornTailStopsReplay(t *testing.T) {
	good := wal.Encode(wal.Header{TransactionID: 1, OpKind: wal.OpPut}, []byte("a"), []byte{1})
	torn := append([]byte{}, good...)
	torn = append(torn, good[:wal.HeaderSize-1]...) // incomplete second header

	records, truncated := wal.Replay(torn, true)
	require.True(t, truncated)
	require.Len(t, records, 1)
}

func TestWAL_CorruptCRCStopsReplayAtThatRecord(t *testing.T) {
	first := wal.Encode(wal.Header{TransactionID: 1, OpKind: wal.OpPut}, []byte("a"), []byte{1})
	second := wal.Encode(wal.Header{TransactionID: 2, OpKind: wal.OpPut}, []byte("b"), []byte{2})

	second[36] ^= 0xFF // corrupt the CRC field of the second record

	stream := append(append([]byte{}, first...), second...)

	records, truncated := wal.Replay(stream, true)
	require.True(t, truncated)
	require.Len(t, records, 1)
	require.Equal(t, []byte("a"), records[0].Key)
}

func TestWAL_FlushOnCapacity(t *testing.T) {
	w, backend, path := openTestWAL(t, wal.HeaderSize+1) // room for exactly one tiny record

	require.NoError(t, w.Append(wal.Header{TransactionID: w.NextTransactionID(), OpKind: wal.OpPut}, []byte("a"), nil))
	require.NoError(t, w.Append(wal.Header{TransactionID: w.NextTransactionID(), OpKind: wal.OpPut}, []byte("b"), nil))
	require.NoError(t, w.Close())

	h, err := backend.OpenAppend(path)
	require.NoError(t, err)

	data, err := backend.ReadBytes(h)
	require.NoError(t, err)
	require.NoError(t, backend.Close(h))

	records, truncated := wal.Replay(data, true)
	require.False(t, truncated)
	require.Len(t, records, 2)
}
