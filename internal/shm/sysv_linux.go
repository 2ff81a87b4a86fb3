//go:build linux

package shm

import (
	"fmt"
	"hash/fnv"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ipcCreat   = 0x200
	ipcExcl    = 0x400
	shmPerm600 = 0o600
)

func shmKey(name string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	//nolint:gosec // truncation to a positive 31-bit key is intentional.
	return int32(h.Sum32() & 0x7fffffff)
}

// sysvSegment is backed by a SysV shared memory segment (shmget/shmat),
// attached at a kernel-chosen address and exposed as a Go byte slice via
// unsafe.Slice over that address - the same raw-syscall approach package
// ipc uses for SysV semaphores, since golang.org/x/sys/unix has no
// higher-level wrapper for SysV shared memory either.
type sysvSegment struct {
	mu   sync.Mutex
	id   int
	addr uintptr
	data []byte
}

func openSysV(name string, size int) (Segment, error) {
	key := shmKey(name)

	id, _, errno := unix.Syscall(unix.SYS_SHMGET, uintptr(key), uintptr(size), uintptr(ipcCreat|shmPerm600))
	if errno == unix.EEXIST || errno == unix.EINVAL {
		// Either already exists (attach to it) or exists with a different
		// size (EINVAL) - in the latter case attaching still gives us a
		// usable segment sized to what was actually created, which is the
		// best this backend can do without destroying and recreating it.
		id, _, errno = unix.Syscall(unix.SYS_SHMGET, uintptr(key), 0, 0)
	}
	if errno != 0 {
		return nil, fmt.Errorf("%w: shmget: %w", ErrUnsupported, errno)
	}

	addr, _, errno := unix.Syscall(unix.SYS_SHMAT, id, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("%w: shmat: %w", ErrUnsupported, errno)
	}

	// Never view more than the segment actually holds: in the EINVAL case
	// above the existing segment is smaller than size.
	var ds unix.SysvShmDesc
	if _, _, errno := unix.Syscall(unix.SYS_SHMCTL, id, unix.IPC_STAT, uintptr(unsafe.Pointer(&ds))); errno != 0 {
		_, _, _ = unix.Syscall(unix.SYS_SHMDT, addr, 0, 0)
		return nil, fmt.Errorf("%w: shmctl stat: %w", ErrUnsupported, errno)
	}
	if int(ds.Segsz) < size {
		size = int(ds.Segsz)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size) //nolint:gosec // required to view the attached segment as a slice.

	return &sysvSegment{id: int(id), addr: addr, data: data}, nil
}

func (s *sysvSegment) Size() int { return len(s.data) }

func (s *sysvSegment) Read(p []byte) error {
	if len(p) != len(s.data) {
		return fmt.Errorf("shm: Read buffer size %d, want %d", len(p), len(s.data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(p, s.data)
	return nil
}

func (s *sysvSegment) Write(p []byte) error {
	if len(p) != len(s.data) {
		return fmt.Errorf("shm: Write buffer size %d, want %d", len(p), len(s.data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.data, p)
	return nil
}

func (s *sysvSegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, errno := unix.Syscall(unix.SYS_SHMDT, s.addr, 0, 0)
	if errno != 0 {
		return fmt.Errorf("shmdt: %w", errno)
	}
	return nil
}
