package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/digest"
	"github.com/ultrascale/usm/pkg/storage"
)

func TestFileBackend_EntryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewFileBackend(storage.NewReal())

	require.NoError(t, backend.CreateContainer(dir))

	addr := digest.AddressOf([]byte("k"))
	path := storage.EntryPath(dir, addr)

	h, err := backend.OpenReadWrite(path)
	require.NoError(t, err)

	encoded := storage.SerializeEntry([]byte("k"), 0, []byte{0x42})
	require.NoError(t, backend.WriteBytes(h, encoded))
	require.NoError(t, backend.Close(h))

	h2, err := backend.OpenReadWrite(path)
	require.NoError(t, err)

	data, err := backend.ReadBytes(h2)
	require.NoError(t, err)
	require.NoError(t, backend.Close(h2))

	key, tag, value, err := storage.DeserializeEntry(data)
	require.NoError(t, err)
	require.Equal(t, []byte("k"), key)
	require.Equal(t, byte(0), tag)
	require.Equal(t, []byte{0x42}, value)
}

func TestFileBackend_ListEntries(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewFileBackend(storage.NewReal())
	require.NoError(t, backend.CreateContainer(dir))

	for _, k := range []string{"a", "b", "c"} {
		addr := digest.AddressOf([]byte(k))
		path := storage.EntryPath(dir, addr)

		h, err := backend.OpenReadWrite(path)
		require.NoError(t, err)
		require.NoError(t, backend.WriteBytes(h, storage.SerializeEntry([]byte(k), 0, []byte{1})))
		require.NoError(t, backend.Close(h))
	}

	entries, err := backend.ListEntries(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, p := range entries {
		require.Equal(t, filepath.Ext(p), ".bin")
	}
}

func TestFileBackend_EntryExists(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewFileBackend(storage.NewReal())
	require.NoError(t, backend.CreateContainer(dir))

	addr := digest.AddressOf([]byte("missing"))
	path := storage.EntryPath(dir, addr)

	exists, err := backend.EntryExists(path)
	require.NoError(t, err)
	require.False(t, exists)

	h, err := backend.OpenReadWrite(path)
	require.NoError(t, err)
	require.NoError(t, backend.WriteBytes(h, storage.SerializeEntry([]byte("missing"), 0, []byte{1})))
	require.NoError(t, backend.Close(h))

	exists, err = backend.EntryExists(path)
	require.NoError(t, err)
	require.True(t, exists)
}
