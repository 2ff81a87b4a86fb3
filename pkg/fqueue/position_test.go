package fqueue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kronuz/fqueue/internal/shm"
	"github.com/kronuz/fqueue/pkg/fs"
)

func newTestPositionStore(t *testing.T, name string) *positionStore {
	t.Helper()

	fsys := fs.NewReal()
	locker := fs.NewLocker(fsys)

	live, err := shm.Open(name+".spos", liveRecordSize, shm.BackendFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = live.Close() })

	pos, err := openPositionStore(fsys, locker, name+".pos", live)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pos.Close() })

	return pos
}

func TestPositionStore_FreshQueueReadsZero(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	pos := newTestPositionStore(t, name)

	bucket, offset, err := pos.readDurable()
	require.NoError(t, err)
	require.Zero(t, bucket)
	require.Zero(t, offset)
}

func TestPositionStore_UpdateDurable_Persists(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	pos := newTestPositionStore(t, name)

	require.NoError(t, pos.updateDurable(3, 1024))

	bucket, offset, err := pos.readDurable()
	require.NoError(t, err)
	require.Equal(t, uint64(3), bucket)
	require.Equal(t, uint64(1024), offset)
}

func TestPositionStore_LiveMirror_RoundTrips(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	pos := newTestPositionStore(t, name)

	require.NoError(t, pos.writeLive(7, 256, 42))

	bucket, offset, age, err := pos.readLive()
	require.NoError(t, err)
	require.Equal(t, uint64(7), bucket)
	require.Equal(t, uint64(256), offset)
	require.Equal(t, uint64(42), age)
}

func TestPositionStore_OpenPositionStore_ReopensExisting(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	first := newTestPositionStore(t, name)
	require.NoError(t, first.updateDurable(2, 99))
	require.NoError(t, first.Close())

	fsys := fs.NewReal()
	locker := fs.NewLocker(fsys)
	live, err := shm.Open(name+".spos", liveRecordSize, shm.BackendFile)
	require.NoError(t, err)
	defer func() { _ = live.Close() }()

	second, err := openPositionStore(fsys, locker, name+".pos", live)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	bucket, offset, err := second.readDurable()
	require.NoError(t, err)
	require.Equal(t, uint64(2), bucket)
	require.Equal(t, uint64(99), offset)
}
