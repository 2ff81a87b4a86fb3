package fqueue

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kronuz/fqueue/pkg/fs"
)

func TestSegmentLog_OpenWrite_ScansToHighestExistingBucket(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	fsys := fs.NewReal()

	require.NoError(t, fsys.WriteFile(bucketPath(name, 0), []byte("x"), 0o600))
	require.NoError(t, fsys.WriteFile(bucketPath(name, 1), []byte("y"), 0o600))
	require.NoError(t, fsys.WriteFile(bucketPath(name, 2), []byte("z"), 0o600))

	log := newSegmentLog(fsys, name)
	require.NoError(t, log.openWrite(0))

	bucket, _ := log.writeState()
	require.Equal(t, uint64(2), bucket)
}

func TestSegmentLog_AppendGrowsWriteBucket(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	fsys := fs.NewReal()
	locker := fs.NewLocker(fsys)

	log := newSegmentLog(fsys, name)
	require.NoError(t, log.openWrite(0))

	offset, err := log.append(locker, []byte("hello"))
	require.NoError(t, err)
	require.EqualValues(t, 5, offset)

	offset, err = log.append(locker, []byte("!!"))
	require.NoError(t, err)
	require.EqualValues(t, 7, offset)
}

func TestSegmentLog_OpenRead_TouchesMissingBucketIntoExistence(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	fsys := fs.NewReal()

	log := newSegmentLog(fsys, name)
	require.NoError(t, log.openRead(0))

	exists, err := fsys.Exists(bucketPath(name, 0))
	require.NoError(t, err)
	require.True(t, exists)

	f := log.readHandle()
	n, err := f.Read(make([]byte, 1))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestSegmentLog_Cleanup_RemovesBucketsBackwardWhileTheyExist(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	fsys := fs.NewReal()

	for n := range uint64(4) {
		require.NoError(t, fsys.WriteFile(bucketPath(name, n), []byte("x"), 0o600))
	}

	log := newSegmentLog(fsys, name)
	log.cleanup(2)

	for n := range uint64(3) {
		exists, err := fsys.Exists(bucketPath(name, n))
		require.NoError(t, err)
		require.Falsef(t, exists, "bucket %d should have been removed", n)
	}

	exists, err := fsys.Exists(bucketPath(name, 3))
	require.NoError(t, err)
	require.True(t, exists, "bucket 3 is above the cleanup threshold and should remain")
}

func TestSegmentLog_Cleanup_NegativeIsNoop(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "q")
	fsys := fs.NewReal()

	log := newSegmentLog(fsys, name)
	log.cleanup(-1) // must not panic or touch bucket 0
}
