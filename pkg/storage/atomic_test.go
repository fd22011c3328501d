package storage_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/storage"
)

func TestAtomicWriter_WriteWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	w := storage.NewAtomicWriter(storage.NewReal())
	require.NoError(t, w.WriteWithDefaults(path, strings.NewReader(`{"ok":true}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(data))
}

func TestAtomicWriter_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	w := storage.NewAtomicWriter(storage.NewReal())
	require.NoError(t, w.WriteWithDefaults(path, strings.NewReader("first")))
	require.NoError(t, w.WriteWithDefaults(path, strings.NewReader("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}
