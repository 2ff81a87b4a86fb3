package fqueue

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/kronuz/fqueue/internal/shm"
	"github.com/kronuz/fqueue/pkg/fs"
)

// durableRecordSize is the on-disk width of the durable position: a
// little-endian (bucket uint64, offset uint64) pair.
const durableRecordSize = 16

// liveRecordSize is the shared-memory width of the live position mirror: a
// little-endian (bucket uint64, offset uint64, age uint64) triple.
const liveRecordSize = 24

// positionStore holds the durable position file (name.pos) and the live
// shared-memory mirror (name.spos).
//
// The durable file is locked with the same [fs.Locker] used for write-bucket
// exclusion, but on its own path - flock is associated with an open file
// description, so a dedicated lock acquisition per call is correct even
// though posFile stays open across calls for plain reads/writes.
type positionStore struct {
	posFile fs.File
	posPath string
	locker  *fs.Locker
	live    shm.Segment
}

func openPositionStore(fsys fs.FS, locker *fs.Locker, posPath string, live shm.Segment) (*positionStore, error) {
	exists, err := fsys.Exists(posPath)
	if err != nil {
		return nil, fmt.Errorf("stat position file: %w", err)
	}

	if !exists {
		// One-time bootstrap: an atomic temp-file-plus-rename write through
		// the same fs.FS the rest of the store uses. Every subsequent update
		// goes through updateDurable's locked in-place overwrite+fsync
		// instead.
		writer := fs.NewAtomicWriter(fsys)
		opts := writer.DefaultOptions()
		opts.Perm = 0o600
		if err := writer.Write(posPath, bytes.NewReader(encodeDurable(0, 0)), opts); err != nil {
			return nil, fmt.Errorf("create position file: %w", err)
		}
	}

	f, err := fsys.OpenFile(posPath, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open position file: %w", err)
	}

	return &positionStore{posFile: f, posPath: posPath, locker: locker, live: live}, nil
}

func (p *positionStore) Close() error {
	return p.posFile.Close()
}

func encodeDurable(bucket, offset uint64) []byte {
	buf := make([]byte, durableRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], bucket)
	binary.LittleEndian.PutUint64(buf[8:16], offset)
	return buf
}

// readDurable reads (bucket, offset) under the position file lock. A
// missing or short-written file (first boot racing the bootstrap write)
// reads back as (0, 0), which is the correct starting position anyway.
func (p *positionStore) readDurable() (bucket, offset uint64, err error) {
	err = p.locker.WithLock(p.posPath, func() error {
		b, o := p.readDurableLocked()
		bucket, offset = b, o
		return nil
	})
	return bucket, offset, err
}

func (p *positionStore) readDurableLocked() (bucket, offset uint64) {
	if _, err := p.posFile.Seek(0, io.SeekStart); err != nil {
		return 0, 0
	}
	buf := make([]byte, durableRecordSize)
	if _, err := io.ReadFull(p.posFile, buf); err != nil {
		return 0, 0
	}
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16])
}

// updateDurable overwrites the durable position in place under the file
// lock, flushing and fsyncing before returning - the steady-state
// checkpoint write, distinct from the one-time atomic-rename bootstrap
// above.
func (p *positionStore) updateDurable(bucket, offset uint64) error {
	return p.locker.WithLock(p.posPath, func() error {
		if _, err := p.posFile.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek position file: %w", err)
		}
		if _, err := p.posFile.Write(encodeDurable(bucket, offset)); err != nil {
			return fmt.Errorf("write position file: %w", err)
		}
		if err := p.posFile.Sync(); err != nil {
			return fmt.Errorf("fsync position file: %w", err)
		}
		return nil
	})
}

// readLive reads the shared-memory mirror (bucket, offset, age). A segment
// read failure falls back to the durable position with age reset to zero -
// treating a bad live mirror as if it were never written, reached here via
// an I/O error rather than a deserialization error since the live format
// is fixed-width raw integers.
func (p *positionStore) readLive() (bucket, offset, age uint64, err error) {
	buf := make([]byte, liveRecordSize)
	if rerr := p.live.Read(buf); rerr != nil {
		b, o, derr := p.readDurable()
		if derr != nil {
			return 0, 0, 0, fmt.Errorf("read live position: %w (fallback to durable also failed: %v)", rerr, derr)
		}
		return b, o, 0, nil
	}

	bucket = binary.LittleEndian.Uint64(buf[0:8])
	offset = binary.LittleEndian.Uint64(buf[8:16])
	age = binary.LittleEndian.Uint64(buf[16:24])
	return bucket, offset, age, nil
}

func (p *positionStore) writeLive(bucket, offset, age uint64) error {
	buf := make([]byte, liveRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], bucket)
	binary.LittleEndian.PutUint64(buf[8:16], offset)
	binary.LittleEndian.PutUint64(buf[16:24], age)
	return p.live.Write(buf)
}
