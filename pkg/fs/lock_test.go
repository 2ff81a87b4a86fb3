package fs

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func Test_Locker_TryLock_Fails_When_Already_Held(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "q.pos")

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer func() { _ = held.Close() }()

	_, err = locker.TryLock(path)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryLock err=%v, want ErrWouldBlock", err)
	}
}

func Test_Locker_TryLock_Succeeds_After_Release(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "q.pos")

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := held.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lk, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := lk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func Test_Locker_Lock_Blocks_Until_Released(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "q.pos")

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		lk, err := locker.Lock(path)
		if err != nil {
			t.Errorf("Lock: %v", err)
			return
		}
		close(acquired)
		_ = lk.Close()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first is still held")
	case <-time.After(50 * time.Millisecond):
	}

	if err := held.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired after release")
	}

	wg.Wait()
}

func Test_Locker_WithLock_Runs_Fn_And_Releases(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "q.pos")

	ran := false
	if err := locker.WithLock(path, func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("fn never ran")
	}

	lk, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after WithLock: %v", err)
	}
	_ = lk.Close()
}

func Test_Locker_WithLock_Propagates_Fn_Error_And_Still_Releases(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "q.pos")

	wantErr := errors.New("boom")
	err := locker.WithLock(path, func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithLock err=%v, want %v", err, wantErr)
	}

	lk, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after failed WithLock: %v", err)
	}
	_ = lk.Close()
}

func Test_Locker_Lock_Creates_Parent_Directories(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "nested", "dir", "q.pos")

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_ = lk.Close()
}
