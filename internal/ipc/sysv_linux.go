//go:build linux

package ipc

import (
	"fmt"
	"hash/fnv"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SysV IPC constants. golang.org/x/sys/unix exposes the syscall numbers
// (SYS_SEMGET etc.) but no high-level semaphore wrapper, so this package
// issues the raw syscalls directly - the same approach most Go programs
// that need SysV semaphores take in the absence of cgo.
const (
	ipcCreat   = 0x200
	ipcExcl    = 0x400
	ipcNoWait  = 0x800
	semGetVal  = 12
	semSetVal  = 16
	semPerm600 = 0o600
)

// sembuf mirrors struct sembuf from <sys/sem.h>.
type sembuf struct {
	semNum uint16
	semOp  int16
	semFlg int16
}

func semKey(name string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	//nolint:gosec // truncation to a positive 31-bit key is intentional, see doc comment on Open.
	return int32(h.Sum32() & 0x7fffffff)
}

// sysvSem is a named counting semaphore backed by a single-member SysV
// semaphore set.
type sysvSem struct {
	id int
}

func openSysV(name string) (Sem, error) {
	key := semKey(name)

	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(ipcCreat|ipcExcl|semPerm600))
	if errno == 0 {
		sem := &sysvSem{id: int(id)}
		if err := sem.setVal(1); err != nil {
			return nil, err
		}
		return sem, nil
	}

	if errno != unix.EEXIST {
		return nil, fmt.Errorf("%w: semget create: %w", ErrUnsupported, errno)
	}

	id, _, errno = unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(semPerm600))
	if errno != 0 {
		return nil, fmt.Errorf("%w: semget attach: %w", ErrUnsupported, errno)
	}

	return &sysvSem{id: int(id)}, nil
}

func (s *sysvSem) setVal(val int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, semSetVal, uintptr(val), 0, 0)
	if errno != 0 {
		return fmt.Errorf("semctl setval: %w", errno)
	}
	return nil
}

func (s *sysvSem) Acquire(timeout time.Duration) error {
	op := sembuf{semNum: 0, semOp: -1}

	switch {
	case timeout == 0:
		op.semFlg = ipcNoWait
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(s.id), uintptr(unsafe.Pointer(&op)), 1)
		return sysvAcquireResult(errno)

	case timeout < 0:
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(s.id), uintptr(unsafe.Pointer(&op)), 1)
		return sysvAcquireResult(errno)

	default:
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		_, _, errno := unix.Syscall6(
			unix.SYS_SEMTIMEDOP, uintptr(s.id), uintptr(unsafe.Pointer(&op)), 1,
			uintptr(unsafe.Pointer(&ts)), 0, 0,
		)
		return sysvAcquireResult(errno)
	}
}

func sysvAcquireResult(errno unix.Errno) error {
	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		return ErrBusy
	default:
		return fmt.Errorf("semop: %w", errno)
	}
}

func (s *sysvSem) Release() error {
	op := sembuf{semNum: 0, semOp: 1}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(s.id), uintptr(unsafe.Pointer(&op)), 1)
	if errno != 0 {
		return fmt.Errorf("semop release: %w", errno)
	}
	return nil
}

func (s *sysvSem) Value() (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, semGetVal, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("semctl getval: %w", errno)
	}
	return int(int32(r)), nil
}

// Close is a no-op: SysV semaphore sets have no per-process attach/detach
// state the way shared memory does. The kernel object outlives the process
// until an operator removes it (ipcrm) or the host reboots.
func (s *sysvSem) Close() error { return nil }
