package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kronuz/fqueue/pkg/fs"
)

// fileSem is the portable semaphore backend: a little-endian uint64 counter
// in a regular file, mutated under flock. It has no native timed acquire -
// any non-zero timeout is treated as a single non-blocking attempt. Wrap
// with [NewPolling] (done automatically by [Open]) for real timeouts.
type fileSem struct {
	mu       sync.Mutex
	path     string
	lockPath string
	fsys     fs.FS
	locker   *fs.Locker

	initOnce sync.Once
	initErr  error
}

func openFile(path string) Sem {
	fsys := fs.NewReal()
	return &fileSem{
		path:     path,
		lockPath: path + ".lock",
		fsys:     fsys,
		locker:   fs.NewLocker(fsys),
	}
}

func (f *fileSem) ensureInit() error {
	f.initOnce.Do(func() {
		f.initErr = f.locker.WithLock(f.lockPath, func() error {
			exists, err := f.fsys.Exists(f.path)
			if err != nil {
				return fmt.Errorf("stat semaphore file: %w", err)
			}
			if exists {
				return nil
			}
			writer := fs.NewAtomicWriter(f.fsys)
			opts := writer.DefaultOptions()
			opts.Perm = 0o600
			return writer.Write(f.path, bytes.NewReader(encodeCounter(1)), opts)
		})
	})
	return f.initErr
}

func (f *fileSem) Acquire(timeout time.Duration) error {
	if err := f.ensureInit(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	acquired := false

	err := f.locker.WithLock(f.lockPath, func() error {
		val, err := f.readCounter()
		if err != nil {
			return err
		}
		if val == 0 {
			return nil
		}
		acquired = true
		return f.writeCounter(val - 1)
	})
	if err != nil {
		return err
	}
	if !acquired {
		return ErrBusy
	}

	return nil
}

func (f *fileSem) Release() error {
	if err := f.ensureInit(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.locker.WithLock(f.lockPath, func() error {
		val, err := f.readCounter()
		if err != nil {
			return err
		}
		return f.writeCounter(val + 1)
	})
}

func (f *fileSem) Value() (int, error) {
	if err := f.ensureInit(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var val uint64
	err := f.locker.WithLock(f.lockPath, func() error {
		v, err := f.readCounter()
		val = v
		return err
	})

	return int(val), err
}

func (f *fileSem) Close() error { return nil }

func (f *fileSem) readCounter() (uint64, error) {
	file, err := f.fsys.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open semaphore file: %w", err)
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, 8)
	n, err := io.ReadFull(file, buf)
	if err != nil && n == 0 {
		return 0, nil
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("read semaphore file: %w", err)
	}

	return binary.LittleEndian.Uint64(buf), nil
}

func (f *fileSem) writeCounter(val uint64) error {
	file, err := f.fsys.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open semaphore file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek semaphore file: %w", err)
	}
	if _, err := file.Write(encodeCounter(val)); err != nil {
		return fmt.Errorf("write semaphore file: %w", err)
	}

	return file.Sync()
}

func encodeCounter(val uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	return buf
}
