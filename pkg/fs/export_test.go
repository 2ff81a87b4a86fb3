package fs

import (
	"io"
	"os"
)

// TruncatingFS wraps an FS and caps how many bytes any single file opened
// through it can ever have written to it, simulating a crash that loses the
// tail of an in-flight write. It exists so tests outside this package (see
// atomic_write_test.go) can exercise AtomicWriter against a filesystem that
// fails partway through, without a full fault-injection harness.
type TruncatingFS struct {
	FS
	MaxBytes int
}

// NewTruncatingFS wraps fsys so that writes to any file it creates or opens
// stop returning bytes-written once maxBytes total have been written.
func NewTruncatingFS(fsys FS, maxBytes int) *TruncatingFS {
	return &TruncatingFS{FS: fsys, MaxBytes: maxBytes}
}

func (t *TruncatingFS) Create(path string) (File, error) {
	f, err := t.FS.Create(path)
	if err != nil {
		return nil, err
	}
	return &truncatingFile{File: f, remaining: t.MaxBytes}, nil
}

func (t *TruncatingFS) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := t.FS.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &truncatingFile{File: f, remaining: t.MaxBytes}, nil
}

type truncatingFile struct {
	File
	remaining int
}

func (f *truncatingFile) Write(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, io.ErrShortWrite
	}
	origLen := len(p)
	if len(p) > f.remaining {
		p = p[:f.remaining]
	}
	n, err := f.File.Write(p)
	f.remaining -= n
	if err == nil && n < origLen {
		err = io.ErrShortWrite
	}
	return n, err
}
