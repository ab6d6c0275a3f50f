package indexer

import "sync/atomic"

// IndexLock is a non-blocking lock guarding an indexing run. A second caller
// gets an immediate refusal instead of queueing behind a long backfill.
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire reports whether the caller now holds the lock
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Running reports whether an indexing run currently holds the lock
func (l *IndexLock) Running() bool {
	return l.state.Load() == 1
}
