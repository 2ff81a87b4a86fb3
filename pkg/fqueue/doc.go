// Package fqueue implements a persistent, multi-producer/multi-consumer
// FIFO queue backed by local filesystem storage.
//
// A queue is identified by a path prefix. Producers append opaque byte
// records with [Queue.Put]; consumers read them back in insertion order
// with [Queue.Get]. The queue survives process crashes and restarts:
// records that were durably appended but not yet read remain on disk and
// are delivered to the next consumer that opens the same name.
//
// Coordination across processes uses three primitives layered bottom-up:
//
//   - a file lock (flock) serializes appends to the current write bucket;
//   - a named counting semaphore signals "a record is known to exist
//     beyond the durable read position" and blocks consumers until one is
//     available;
//   - a small position record, mirrored in shared memory for fast reads
//     and checkpointed to disk periodically, tracks how far a reader has
//     progressed.
//
// The queue is single-host only. It makes no attempt at replication or
// distributed consensus, offers no transactions, priorities, message TTL,
// or redelivery after a consumer crashes mid-read: once the durable
// position has advanced past a record it is considered consumed. Delivery
// is at-least-once, not exactly-once - a crash between decoding a record
// and checkpointing the durable position can cause that record (and up to
// [Options.SyncAge] before it) to be redelivered after restart.
package fqueue
