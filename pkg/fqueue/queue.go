package fqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kronuz/fqueue/internal/ipc"
	"github.com/kronuz/fqueue/internal/shm"
	"github.com/kronuz/fqueue/pkg/fs"
)

// Queue is a persistent, multi-process FIFO queue. See the package doc
// comment for the coordination model and the Put/Get algorithms this
// type implements.
type Queue struct {
	opts Options

	fsys   fs.FS
	locker *fs.Locker
	pos    *positionStore
	log    *segmentLog

	// pending counts records appended beyond the durable read position.
	// Both semaphores are created with initial value 1 - the first
	// non-blocking Get on a brand-new queue harmlessly consumes that
	// phantom token, hits Eof, loops, and then correctly reports ErrEmpty.
	pending    ipc.Sem
	readerLock ipc.Sem

	closeOnce sync.Once
	stopped   atomic.Bool
}

// Open attaches to (creating if necessary) the queue identified by
// opts.Name.
func Open(opts Options) (*Queue, error) {
	if opts.Name == "" {
		return nil, errors.New("fqueue: Options.Name is required")
	}
	opts = opts.withDefaults()

	fsys := fs.NewReal()
	locker := fs.NewLocker(fsys)

	pending, err := ipc.Open(opts.Name+".sem", opts.Backend.ipcBackend())
	if err != nil {
		return nil, fmt.Errorf("open pending-item semaphore: %w", err)
	}

	readerLock, err := ipc.Open(opts.Name+".lock", opts.Backend.ipcBackend())
	if err != nil {
		_ = pending.Close()
		return nil, fmt.Errorf("open reader-serialization semaphore: %w", err)
	}

	live, err := shm.Open(opts.Name+".spos", liveRecordSize, opts.Backend.shmBackend())
	if err != nil {
		_ = pending.Close()
		_ = readerLock.Close()
		return nil, fmt.Errorf("open position mirror: %w", err)
	}

	pos, err := openPositionStore(fsys, locker, opts.Name+".pos", live)
	if err != nil {
		_ = pending.Close()
		_ = readerLock.Close()
		_ = live.Close()
		return nil, fmt.Errorf("open position store: %w", err)
	}

	log := newSegmentLog(fsys, opts.Name)

	durableBucket, _, err := pos.readDurable()
	if err != nil {
		_ = pending.Close()
		_ = readerLock.Close()
		_ = pos.Close()
		return nil, fmt.Errorf("read durable position: %w", err)
	}

	if err := log.openWrite(durableBucket); err != nil {
		_ = pending.Close()
		_ = readerLock.Close()
		_ = pos.Close()
		return nil, fmt.Errorf("open write bucket: %w", err)
	}

	return &Queue{
		opts:       opts,
		fsys:       fsys,
		locker:     locker,
		pos:        pos,
		log:        log,
		pending:    pending,
		readerLock: readerLock,
	}, nil
}

// Put appends value to the queue and durably fsyncs it before returning,
// A successful Put always makes value visible to the
// next Get, even across a crash immediately afterward.
func (q *Queue) Put(value []byte) error {
	return q.PutContext(context.Background(), value)
}

// PutContext is Put with cancellation. ctx is checked once, before the
// append starts; once the append is under way, PutContext finishes and
// releases the pending-item semaphore regardless of ctx - partially
// applying a Put is not a state this engine can represent.
func (q *Queue) PutContext(ctx context.Context, value []byte) error {
	if q.Closed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := q.compress(value)
	if err != nil {
		return fmt.Errorf("fqueue: %w", err)
	}
	frame := encodeRecord(body)

	offset, err := q.log.append(q.locker, frame)
	if err != nil {
		return fmt.Errorf("fqueue: put: %w", err)
	}

	if err := q.pending.Release(); err != nil {
		return fmt.Errorf("fqueue: put: release pending-item semaphore: %w", err)
	}

	if err := q.log.rotateWriteIfNeeded(offset, q.opts.BucketSize); err != nil {
		return fmt.Errorf("fqueue: put: rotate write bucket: %w", err)
	}
	return nil
}

// Get removes and returns the oldest unread record, blocking indefinitely
// until one is available or the queue is closed.
func (q *Queue) Get() ([]byte, error) {
	return q.GetTimeout(-1)
}

// GetNonBlocking returns ErrEmpty immediately instead of waiting.
func (q *Queue) GetNonBlocking() ([]byte, error) {
	return q.GetTimeout(0)
}

// GetTimeout blocks for at most timeout waiting for a record. timeout < 0
// blocks indefinitely; timeout == 0 never blocks.
//
// Each retry of the outer loop reapplies the full timeout to the
// pending-item semaphore acquire: a caller that asks for a 5s timeout and
// hits two Eof retries along the way may observe up to three separate 5s
// waits rather than one 5s deadline overall. This is a known latency
// characteristic, not a bug.
func (q *Queue) GetTimeout(timeout time.Duration) ([]byte, error) {
	for {
		if q.Closed() {
			return nil, ErrClosed
		}

		if err := q.acquirePending(timeout); err != nil {
			if errors.Is(err, errStopped) {
				return nil, ErrClosed
			}
			if errors.Is(err, ipc.ErrBusy) {
				return nil, ErrEmpty
			}
			return nil, fmt.Errorf("fqueue: get: acquire pending-item semaphore: %w", err)
		}

		payload, emitted, err := q.getOnce()
		if err != nil {
			return nil, err
		}
		if emitted {
			return payload, nil
		}
		// Eof or recovered-Corrupt: no record was actually consumed, loop
		// back and wait for the next signal.
	}
}

// stopPollInterval bounds how long a Get blocked indefinitely on the
// pending-item semaphore can stay parked after Stop is called. It is the
// slice acquirePending requests from the IPC backend's own timed acquire
// (semtimedop on SysV, the polling loop on the file backend) instead of
// ever waiting with a negative timeout.
const stopPollInterval = 200 * time.Millisecond

var errStopped = errors.New("fqueue: queue stopped")

// acquirePending acquires the pending-item semaphore honoring timeout. A
// negative timeout still blocks indefinitely from the caller's point of
// view, but internally polls in stopPollInterval slices so Stop is noticed
// promptly instead of parking inside the backend's own unbounded wait,
// where neither blocking semop nor pollingSem's timeout<0 branch would ever
// be woken by Stop.
func (q *Queue) acquirePending(timeout time.Duration) error {
	if timeout >= 0 {
		return q.pending.Acquire(timeout)
	}

	for {
		err := q.pending.Acquire(stopPollInterval)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ipc.ErrBusy) {
			return err
		}
		if q.Closed() {
			return errStopped
		}
	}
}

// GetContext is GetTimeout driven by ctx instead of a fixed duration.
// Cancellation is only observed promptly up to the point the queue hands
// off to the IPC backend's own Acquire: once past the pending-item
// acquire, a get runs to completion rather than aborting mid-decode. If
// ctx has no deadline, GetContext blocks indefinitely alongside
// ctx.Done().
func (q *Queue) GetContext(ctx context.Context) ([]byte, error) {
	timeout := time.Duration(-1)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}

	type result struct {
		payload []byte
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		payload, err := q.GetTimeout(timeout)
		ch <- result{payload, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.payload, r.err
	}
}

// getOnce performs one attempt at reading the record the live position
// currently points at. It returns emitted=true only when a record was
// successfully decoded and handed back to the caller; any other outcome
// (Eof, recovered Corrupt) leaves emitted=false so GetTimeout's outer loop
// retries.
func (q *Queue) getOnce() (payload []byte, emitted bool, err error) {
	if err := q.readerLock.Acquire(defaultReaderLockTimeout); err != nil {
		if errors.Is(err, ipc.ErrBusy) {
			if q.Closed() {
				return nil, false, ErrEmpty
			}
			return nil, false, fmt.Errorf("fqueue: get: reader lock contended: %w", err)
		}
		return nil, false, fmt.Errorf("fqueue: get: acquire reader lock: %w", err)
	}
	defer func() { _ = q.readerLock.Release() }()

	bucket, offset, age, err := q.pos.readLive()
	if err != nil {
		return nil, false, fmt.Errorf("fqueue: get: %w", err)
	}

	if err := q.log.openRead(bucket); err != nil {
		return nil, false, fmt.Errorf("fqueue: get: %w", err)
	}

	body, newBucket, newOffset, rotated, decErr := q.decodeAt(bucket, offset)
	switch {
	case decErr == nil:
		result, err := q.decompress(body)
		if err != nil {
			// Framing was intact but the content doesn't decompress - treat
			// it the same as a CRC failure, per codec.go's decompress doc.
			return q.recoverFromCorrupt()
		}
		if err := q.checkpoint(newBucket, newOffset, age, rotated); err != nil {
			return nil, false, fmt.Errorf("fqueue: get: %w", err)
		}
		return result, true, nil

	case errors.Is(decErr, errEOF):
		if err := q.checkpoint(bucket, offset, age, false); err != nil {
			return nil, false, fmt.Errorf("fqueue: get: %w", err)
		}
		return nil, false, nil

	case errors.Is(decErr, errCorrupt):
		return q.recoverFromCorrupt()

	default:
		return nil, false, fmt.Errorf("fqueue: get: decode record: %w", decErr)
	}
}

// recoverFromCorrupt resets the live position mirror back to the last
// durable checkpoint with age zeroed, discarding whatever unreadable bytes
// sit between the durable and live positions. This is the local-recovery
// response to a CRC mismatch: corruption is contained to at most the
// records written since the last checkpoint.
func (q *Queue) recoverFromCorrupt() ([]byte, bool, error) {
	bucket, offset, err := q.pos.readDurable()
	if err != nil {
		return nil, false, fmt.Errorf("fqueue: get: reset position after corruption: %w", err)
	}
	if err := q.pos.writeLive(bucket, offset, 0); err != nil {
		return nil, false, fmt.Errorf("fqueue: get: reset live position after corruption: %w", err)
	}
	return nil, false, nil
}

// decodeAt attempts to decode one record at (bucket, offset), handling
// bucket rotation and the pending-item re-signal for records already known
// to exist past the one just read.
func (q *Queue) decodeAt(bucket, offset uint64) (payload []byte, newBucket, newOffset uint64, rotated bool, err error) {
	f := q.log.readHandle()
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, 0, 0, false, fmt.Errorf("seek read bucket: %w", err)
	}

	body, decErr := decodeRecord(f)
	if decErr != nil {
		return nil, 0, 0, false, decErr
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, 0, false, fmt.Errorf("tell read bucket: %w", err)
	}
	newBucket, newOffset = bucket, uint64(pos)

	if pos > q.opts.BucketSize {
		if err := q.log.rotateRead(bucket); err != nil {
			return nil, 0, 0, false, fmt.Errorf("rotate read bucket: %w", err)
		}
		newBucket, newOffset = bucket+1, 0
		rotated = true
		f = q.log.readHandle()
	}

	var peek [1]byte
	if n, _ := f.Read(peek[:]); n > 0 {
		if err := q.pending.Release(); err != nil {
			return nil, 0, 0, false, fmt.Errorf("re-release pending-item semaphore: %w", err)
		}
	}

	return body, newBucket, newOffset, rotated, nil
}

// checkpoint implements the durable-sync policy: the age counter kept in
// the live mirror increments on every successful or Eof read (a Corrupt
// read resets it to zero via recoverFromCorrupt instead), and once it
// reaches Options.SyncAge - or a bucket rotation forces early durability -
// the durable copy is refreshed and age resets to zero.
func (q *Queue) checkpoint(bucket, offset, age uint64, forceDurable bool) error {
	newAge := age + 1
	if forceDurable || newAge >= q.opts.SyncAge {
		if err := q.pos.updateDurable(bucket, offset); err != nil {
			return fmt.Errorf("checkpoint durable position: %w", err)
		}
		newAge = 0
	}
	if err := q.pos.writeLive(bucket, offset, newAge); err != nil {
		return fmt.Errorf("checkpoint live position: %w", err)
	}
	return nil
}

// Stat reports a point-in-time snapshot of queue state. PendingApprox is
// only meaningful when PendingKnown is true - some semaphore backends
// cannot report a counter value cheaply.
type Stat struct {
	WriteBucket   uint64
	WriteOffset   int64
	ReadBucket    uint64
	ReadOffset    uint64
	PendingApprox int
	PendingKnown  bool
}

// Stat returns a snapshot of the queue's current write and read positions
// and an approximate pending-record count.
func (q *Queue) Stat() (Stat, error) {
	writeBucket, writeOffset := q.log.writeState()

	readBucket, readOffset, _, err := q.pos.readLive()
	if err != nil {
		return Stat{}, fmt.Errorf("fqueue: stat: %w", err)
	}

	pending, perr := q.pending.Value()
	return Stat{
		WriteBucket:   writeBucket,
		WriteOffset:   writeOffset,
		ReadBucket:    readBucket,
		ReadOffset:    readOffset,
		PendingApprox: pending,
		PendingKnown:  perr == nil,
	}, nil
}

// GC reclaims every bucket file strictly below the current read bucket.
// This supplements the engine's own get-triggered reclamation with an
// on-demand call an operator or periodic task can invoke directly.
func (q *Queue) GC() error {
	bucket, _, _, err := q.pos.readLive()
	if err != nil {
		return fmt.Errorf("fqueue: gc: %w", err)
	}
	q.log.cleanup(int64(bucket) - 1)
	return nil
}

// Stop marks the queue closed without releasing its resources. Future
// Get/Put calls, and a Get blocked without a timeout, return ErrClosed; a
// Get already waiting with a finite timeout is not interrupted. Stop is
// idempotent and safe to call concurrently with Get/Put.
func (q *Queue) Stop() {
	q.stopped.Store(true)
}

// Closed reports whether Stop or Close has been called.
func (q *Queue) Closed() bool {
	return q.stopped.Load()
}

// Close stops the queue and releases its IPC and file handles. It does not
// delete any queue data - a later Open on the same name resumes where this
// instance left off. Close is idempotent.
func (q *Queue) Close() error {
	q.Stop()

	var err error
	q.closeOnce.Do(func() {
		err = errors.Join(
			q.pending.Close(),
			q.readerLock.Close(),
			q.pos.Close(),
			q.pos.live.Close(),
			q.log.Close(),
		)
	})
	return err
}
