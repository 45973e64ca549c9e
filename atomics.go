package silo

import "sync/atomic"

// countBox is a small atomic counter used for Chunk.size, avoiding a mutex
// on the allocate/free hot path.
type countBox struct {
	v atomic.Int64
}

func (c *countBox) load() int { return int(c.v.Load()) }

func (c *countBox) add(delta int) int {
	return int(c.v.Add(int64(delta)))
}

// queuedFlag is an atomic 0/1 flag guarding ready-queue membership so a
// chunk is never enqueued twice concurrently.
type queuedFlag struct {
	v atomic.Uint32
}

func (q *queuedFlag) tryMark() bool {
	return q.v.CompareAndSwap(0, 1)
}

func (q *queuedFlag) clear() {
	q.v.Store(0)
}
