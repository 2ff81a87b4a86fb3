package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kronuz/fqueue/pkg/fs"
)

func TestAtomicWriteFile_RoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader("hello")); err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content=%q, want %q", string(got), "hello")
	}
}

// A write that dies partway through (simulated by a filesystem that stops
// accepting bytes after a point) must never leave a partial file at path -
// the temp file taking the damage and never being renamed over path is
// what AtomicWriter's rename-based protocol buys us.
func TestAtomicWriteFile_PartialWriteNeverReachesDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	crashing := fs.NewTruncatingFS(fs.NewReal(), 2) // content is 5 bytes, only 2 make it
	writer := fs.NewAtomicWriter(crashing)

	err := writer.WriteWithDefaults(path, strings.NewReader("hello"))
	if err == nil {
		t.Fatalf("WriteWithDefaults: expected an error from the truncated write")
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("destination file should not exist after a failed write, stat err=%v", statErr)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		t.Fatalf("leftover file after failed write+cleanup: %s", e.Name())
	}
}
