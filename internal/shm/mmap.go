package shm

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// mmapSegment is the portable shared-memory backend: a fixed-size regular
// file, mmap'd MAP_SHARED so that writes are immediately visible to every
// process with the file mapped.
type mmapSegment struct {
	mu   sync.Mutex
	file *os.File
	data []byte
}

func openMmap(path string, size int) (Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open shm file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat shm file: %w", err)
	}

	if info.Size() < int64(size) {
		if err := file.Truncate(int64(size)); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("truncate shm file: %w", err)
		}
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap shm file: %w", err)
	}

	return &mmapSegment{file: file, data: data}, nil
}

func (s *mmapSegment) Size() int { return len(s.data) }

func (s *mmapSegment) Read(p []byte) error {
	if len(p) != len(s.data) {
		return fmt.Errorf("shm: Read buffer size %d, want %d", len(p), len(s.data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(p, s.data)
	return nil
}

func (s *mmapSegment) Write(p []byte) error {
	if len(p) != len(s.data) {
		return fmt.Errorf("shm: Write buffer size %d, want %d", len(p), len(s.data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.data, p)
	return nil
}

func (s *mmapSegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	munmapErr := syscall.Munmap(s.data)
	closeErr := s.file.Close()

	if munmapErr != nil {
		return fmt.Errorf("munmap: %w", munmapErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close shm file: %w", closeErr)
	}
	return nil
}
