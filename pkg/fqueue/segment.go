package fqueue

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kronuz/fqueue/pkg/fs"
)

// segmentLog manages the segmented append-only log: a family of bucket
// files named "<name>.<N>" for increasing N.
//
// mu guards writeFile/writeNum and readFile/readNum against concurrent
// access from multiple goroutines within one process. Cross-process
// exclusion on the write path is a separate concern, handled by append
// taking the caller-supplied [fs.Locker]'s lock on the current write
// bucket's path.
type segmentLog struct {
	fsys fs.FS
	name string

	mu        sync.Mutex
	writeFile fs.File
	writeNum  uint64

	readFile     fs.File
	readNum      uint64
	readNumValid bool
}

func newSegmentLog(fsys fs.FS, name string) *segmentLog {
	return &segmentLog{fsys: fsys, name: name}
}

func bucketPath(name string, n uint64) string {
	return fmt.Sprintf("%s.%d", name, n)
}

// openWrite scans forward from n to the highest existing bucket and opens
// that one for append. Scanning forward (rather than trusting n as-is)
// guarantees a producer starting up always resumes at the actual tail of
// the log, even if another producer has already rotated past n.
func (s *segmentLog) openWrite(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openWriteLocked(n)
}

func (s *segmentLog) openWriteLocked(n uint64) error {
	cur := n
	for {
		exists, err := s.fsys.Exists(bucketPath(s.name, cur+1))
		if err != nil {
			return fmt.Errorf("probe bucket %d: %w", cur+1, err)
		}
		if !exists {
			break
		}
		cur++
	}

	if s.writeFile != nil && s.writeNum == cur {
		return nil
	}

	f, err := s.fsys.OpenFile(bucketPath(s.name, cur), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open write bucket %d: %w", cur, err)
	}

	if s.writeFile != nil {
		_ = s.writeFile.Close()
	}
	s.writeFile = f
	s.writeNum = cur
	return nil
}

// openRead switches the read handle to bucket n, creating it if it doesn't
// exist yet (a reader may race a producer that hasn't created the bucket
// it is about to write to). It is a no-op if n is already open for
// reading.
func (s *segmentLog) openRead(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readFile != nil && s.readNumValid && s.readNum == n {
		return nil
	}

	exists, err := s.fsys.Exists(bucketPath(s.name, n))
	if err != nil {
		return fmt.Errorf("probe bucket %d: %w", n, err)
	}
	if !exists {
		f, err := s.fsys.OpenFile(bucketPath(s.name, n), os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return fmt.Errorf("create bucket %d: %w", n, err)
		}
		_ = f.Close()
	}

	f, err := s.fsys.OpenFile(bucketPath(s.name, n), os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open read bucket %d: %w", n, err)
	}

	if s.readFile != nil {
		_ = s.readFile.Close()
	}
	s.readFile = f
	s.readNum = n
	s.readNumValid = true
	return nil
}

func (s *segmentLog) readHandle() fs.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFile
}

// append writes frame to the current write bucket under locker's exclusive
// lock on that bucket's path, flushes and fsyncs it, and returns the file's
// length afterward (the offset of the next record).
func (s *segmentLog) append(locker *fs.Locker, frame []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := bucketPath(s.name, s.writeNum)
	writeFile := s.writeFile

	var offset int64
	err := locker.WithLock(path, func() error {
		if _, err := writeFile.Write(frame); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		if err := writeFile.Sync(); err != nil {
			return fmt.Errorf("fsync record: %w", err)
		}
		pos, err := writeFile.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("tell write bucket: %w", err)
		}
		offset = pos
		return nil
	})
	return offset, err
}

// rotateWriteIfNeeded opens the next write bucket once offset has crossed
// bucketSize.
func (s *segmentLog) rotateWriteIfNeeded(offset, bucketSize int64) error {
	if offset <= bucketSize {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openWriteLocked(s.writeNum + 1)
}

func (s *segmentLog) writeState() (bucket uint64, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeFile == nil {
		return s.writeNum, 0
	}
	pos, err := s.writeFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return s.writeNum, 0
	}
	return s.writeNum, pos
}

// rotateRead switches the read handle forward to bucket n+1 and reclaims
// every bucket at or below n-1 - a consumed bucket can be deleted as soon
// as no reader needs it, and a reader only needs the bucket it is
// currently draining plus whatever the write side still appends to.
func (s *segmentLog) rotateRead(n uint64) error {
	s.cleanup(int64(n) - 1)
	return s.openRead(n + 1)
}

// cleanup removes bucket files backward from n (inclusive) down to 0,
// stopping at the first bucket that no longer exists. Errors from Remove
// are swallowed: a concurrent reader in another process may have already
// won the race to delete the same bucket, which is harmless.
func (s *segmentLog) cleanup(n int64) {
	for n >= 0 {
		path := bucketPath(s.name, uint64(n))
		exists, err := s.fsys.Exists(path)
		if err != nil || !exists {
			return
		}
		_ = s.fsys.Remove(path)
		n--
	}
}

func (s *segmentLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writeErr, readErr error
	if s.writeFile != nil {
		writeErr = s.writeFile.Close()
	}
	if s.readFile != nil {
		readErr = s.readFile.Close()
	}
	if writeErr != nil {
		return writeErr
	}
	return readErr
}
