// Package ipc provides named, cross-process counting semaphores.
//
// Two backends implement the same [Sem] contract: a SysV backend using raw
// semget/semop/semtimedop/semctl syscalls (no high-level wrapper exists in
// golang.org/x/sys/unix for SysV semaphores), and a portable file backend
// built on flock that works wherever SysV IPC is unavailable or denied. The
// SysV backend has a native timed acquire (semtimedop); the file backend
// does not and is wrapped in [NewPolling] to provide one.
package ipc

import (
	"errors"
	"time"
)

// ErrBusy is returned by Acquire when the semaphore's counter is zero at
// the deadline (or immediately, for a zero timeout).
var ErrBusy = errors.New("ipc: semaphore busy")

// ErrUnsupported is returned when a backend is not available on the current
// platform or environment.
var ErrUnsupported = errors.New("ipc: backend unsupported")

// Sem is a named counting semaphore shared across processes.
//
// Acquire and Release must be safe for concurrent use by multiple
// goroutines within one process, in addition to being safe across
// processes.
type Sem interface {
	// Acquire blocks until the counter is positive (decrementing it by one
	// on success) or timeout elapses.
	//
	// timeout < 0 blocks indefinitely. timeout == 0 attempts a single
	// non-blocking acquire. timeout > 0 blocks for at most that long.
	// Returns ErrBusy if the deadline (or the single attempt) finds the
	// counter at zero.
	Acquire(timeout time.Duration) error

	// Release increments the counter by one, waking one blocked Acquire if
	// any is waiting.
	Release() error

	// Value returns the current counter value, if the backend can report
	// one cheaply. Returns (0, ErrUnsupported) otherwise.
	Value() (int, error)

	// Close detaches from the semaphore. It does not destroy the
	// underlying kernel object - other attached processes keep working.
	Close() error
}

// Backend selects which IPC family a [Sem] (or shared memory segment, see
// package shm) is implemented on top of.
type Backend int

const (
	// BackendAuto probes for SysV IPC support and falls back to the file
	// backend if unavailable.
	BackendAuto Backend = iota
	// BackendSysV forces the SysV semaphore backend; Open fails with
	// ErrUnsupported if it cannot be used.
	BackendSysV
	// BackendFile forces the portable flock-based backend.
	BackendFile
)

// Open attaches to (creating if necessary, with initial value 1) the named
// semaphore identified by key under the requested backend.
//
// key is used verbatim by the file backend as a file path, and hashed to a
// 32-bit SysV key by the SysV backend - callers pass the same stable,
// human-readable identifier (e.g. "/var/lib/q.sem") to both.
func Open(key string, backend Backend) (Sem, error) {
	switch backend {
	case BackendSysV:
		return openSysV(key)
	case BackendFile:
		return NewPolling(openFile(key)), nil
	case BackendAuto:
		if sem, err := openSysV(key); err == nil {
			return sem, nil
		}
		return NewPolling(openFile(key)), nil
	default:
		return nil, errors.New("ipc: unknown backend")
	}
}
