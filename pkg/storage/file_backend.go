package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ultrascale/usm/pkg/digest"
)

// FileBackend implements Backend over a directory tree: one append-only
// file for the WAL stream, and one file per entry under
// <storagePath>/entries/<hex address>.bin. The per-key serialization
// format (see SerializeEntry) is this adapter's choice; FileBackend itself
// stores and returns the bytes as given.
type FileBackend struct {
	fs FS
}

// NewFileBackend returns a Backend rooted at the filesystem abstraction fs.
func NewFileBackend(fs FS) *FileBackend {
	return &FileBackend{fs: fs}
}

const entriesDirName = "entries"

// EntryPath returns the per-entry file path for addr under storagePath.
func EntryPath(storagePath string, addr digest.Address) string {
	name := hex.EncodeToString(addr.Digest[:]) + ".bin"
	return filepath.Join(storagePath, entriesDirName, name)
}

func (b *FileBackend) CreateContainer(storagePath string) error {
	if err := b.fs.MkdirAll(filepath.Join(storagePath, entriesDirName), 0o755); err != nil {
		return fmt.Errorf("create container %q: %w", storagePath, err)
	}

	return nil
}

func (b *FileBackend) OpenAppend(walPath string) (Handle, error) {
	if err := b.fs.MkdirAll(filepath.Dir(walPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for wal %q: %w", walPath, err)
	}

	f, err := b.fs.OpenFile(walPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open append %q: %w", walPath, err)
	}

	return f, nil
}

func (b *FileBackend) OpenReadWrite(entryPath string) (Handle, error) {
	if err := b.fs.MkdirAll(filepath.Dir(entryPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for entry %q: %w", entryPath, err)
	}

	f, err := b.fs.OpenFile(entryPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open read-write %q: %w", entryPath, err)
	}

	return f, nil
}

func (b *FileBackend) WriteBytes(h Handle, data []byte) error {
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek before write: %w", err)
	}

	if _, err := h.Write(data); err != nil {
		return fmt.Errorf("write bytes: %w", err)
	}

	if err := h.Sync(); err != nil {
		return fmt.Errorf("sync after write: %w", err)
	}

	return nil
}

func (b *FileBackend) ReadBytes(h Handle) ([]byte, error) {
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek before read: %w", err)
	}

	data, err := io.ReadAll(h)
	if err != nil {
		return nil, fmt.Errorf("read bytes: %w", err)
	}

	return data, nil
}

func (b *FileBackend) ListEntries(storagePath string) ([]string, error) {
	dir := filepath.Join(storagePath, entriesDirName)

	entries, err := b.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list entries %q: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}

		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	return paths, nil
}

func (b *FileBackend) Close(h Handle) error {
	if err := h.Close(); err != nil {
		return fmt.Errorf("close handle: %w", err)
	}

	return nil
}

// EntryExists reports whether entryPath exists, without creating it.
func (b *FileBackend) EntryExists(entryPath string) (bool, error) {
	return b.fs.Exists(entryPath)
}

// RemoveEntry deletes entryPath if present.
func (b *FileBackend) RemoveEntry(entryPath string) error {
	exists, err := b.fs.Exists(entryPath)
	if err != nil {
		return fmt.Errorf("probe before remove %q: %w", entryPath, err)
	}

	if !exists {
		return nil
	}

	if err := b.fs.Remove(entryPath); err != nil {
		return fmt.Errorf("remove entry %q: %w", entryPath, err)
	}

	return nil
}

var _ Backend = (*FileBackend)(nil)
