package fqueue

import (
	"time"

	"github.com/kronuz/fqueue/internal/ipc"
	"github.com/kronuz/fqueue/internal/shm"
)

// Backend selects the IPC family used for the pending-item semaphore, the
// reader-serialization semaphore, and the position-mirror shared memory.
type Backend int

const (
	// BackendAuto probes for SysV IPC support at Open time and falls back
	// to the portable file/mmap backend if unavailable. This is the
	// default.
	BackendAuto Backend = iota
	// BackendSysV forces the SysV backend (raw semget/semop/shmget/shmat
	// syscalls). Open fails if SysV IPC cannot be used.
	BackendSysV
	// BackendFile forces the portable flock+mmap backend.
	BackendFile
)

func (b Backend) ipcBackend() ipc.Backend {
	switch b {
	case BackendSysV:
		return ipc.BackendSysV
	case BackendFile:
		return ipc.BackendFile
	default:
		return ipc.BackendAuto
	}
}

func (b Backend) shmBackend() shm.Backend {
	switch b {
	case BackendSysV:
		return shm.BackendSysV
	case BackendFile:
		return shm.BackendFile
	default:
		return shm.BackendAuto
	}
}

// Compression selects whether Put/Get compress record payloads.
type Compression int

const (
	// CompressionDeflate compresses payloads with compress/flate before
	// codec-wrapping, and inflates after the CRC check passes. This is the
	// default. The CRC covers the compressed bytes.
	CompressionDeflate Compression = iota
	// CompressionNone stores payloads as given, uncompressed.
	CompressionNone
)

// Default tunables.
const (
	DefaultBucketSize = 10 * 1024 * 1024
	DefaultSyncAge    = 500

	// defaultReaderLockTimeout is the fixed cap on how long Get waits to
	// acquire the reader-serialization semaphore.
	defaultReaderLockTimeout = 5 * time.Second
)

// Options configures Open.
type Options struct {
	// Name is the filesystem path prefix identifying the queue. All on-disk
	// state and IPC names are derived from it. Required.
	Name string

	// BucketSize is the rotation threshold in bytes. Defaults to
	// DefaultBucketSize (10 MiB) when zero.
	BucketSize int64

	// SyncAge is the number of reads between durable position checkpoints.
	// Defaults to DefaultSyncAge (500) when zero.
	SyncAge uint64

	// Backend selects the IPC family. Defaults to BackendAuto.
	Backend Backend

	// Compression selects payload compression. Defaults to
	// CompressionDeflate.
	Compression Compression
}

func (o Options) withDefaults() Options {
	if o.BucketSize <= 0 {
		o.BucketSize = DefaultBucketSize
	}
	if o.SyncAge == 0 {
		o.SyncAge = DefaultSyncAge
	}
	return o
}
