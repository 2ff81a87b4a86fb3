package fqueue

import "errors"

// Sentinel errors returned by queue operations. Wrap with %w and unwrap
// with errors.Is.
var (
	// ErrEmpty is returned by Get when no record is available within the
	// requested timeout, or immediately in non-blocking mode.
	ErrEmpty = errors.New("fqueue: empty")

	// ErrFull is reserved for a Put that times out acquiring the write-bucket
	// lock. Put has no timeout, so no operation in this package currently
	// returns it.
	ErrFull = errors.New("fqueue: full")

	// ErrClosed is returned by Get and Put once Close or Stop has been
	// called, including to a caller already blocked inside Get without a
	// timeout. A Get already waiting with a finite timeout is not interrupted.
	ErrClosed = errors.New("fqueue: closed")

	// errCorrupt marks a record that failed its CRC check. It never escapes
	// Get: the engine resets the read position to the last durable value and
	// retries. It is unexported because callers cannot act on it directly.
	errCorrupt = errors.New("fqueue: corrupt record")

	// errEOF marks "no complete record at this offset yet". Like errCorrupt,
	// it is a data condition handled internally by the read loop.
	errEOF = errors.New("fqueue: no record at offset")
)

// IsFatal reports whether err is an I/O or IPC failure that the engine
// could not recover from locally (as opposed to ErrEmpty/ErrFull/ErrClosed,
// which are expected outcomes of normal operation).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrEmpty), errors.Is(err, ErrFull), errors.Is(err, ErrClosed):
		return false
	default:
		return true
	}
}
