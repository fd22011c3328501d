package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/storage"
)

func TestLocker_TryLock_SecondAttemptWouldBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.lock")

	locker := storage.NewLocker(storage.NewReal())

	lock, err := locker.TryLock(path)
	require.NoError(t, err)
	defer func() { _ = lock.Close() }()

	_, err = locker.TryLock(path)
	require.ErrorIs(t, err, storage.ErrWouldBlock)
}

func TestLocker_LockWithTimeout_ExpiresWhileHeld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.lock")

	locker := storage.NewLocker(storage.NewReal())

	lock, err := locker.TryLock(path)
	require.NoError(t, err)
	defer func() { _ = lock.Close() }()

	_, err = locker.LockWithTimeout(path, 20*time.Millisecond)
	require.ErrorIs(t, err, storage.ErrWouldBlock)
}

func TestLocker_CloseThenReacquire(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.lock")

	locker := storage.NewLocker(storage.NewReal())

	lock, err := locker.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Close())

	lock2, err := locker.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lock2.Close())
}
