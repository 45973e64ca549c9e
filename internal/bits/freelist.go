package bits

import "sync/atomic"

const nilLink int32 = -1

// packs a monotonically increasing generation counter with a 1-based index
// into a single uint64 so the Treiber-stack CAS can detect ABA races caused
// by a slot being popped, pushed, and popped again between a reader's load
// and its CAS.
func pack(generation uint32, oneBasedIndex int32) uint64 {
	return uint64(generation)<<32 | uint64(uint32(oneBasedIndex))
}

func unpack(v uint64) (generation uint32, oneBasedIndex int32) {
	return uint32(v >> 32), int32(uint32(v))
}

// FreeList is a lock-free LIFO (Treiber stack) of integer slot indices in
// [0, capacity). Safe for concurrent Push/Pop from many goroutines without a
// mutex; a single CAS retry loop resolves contention.
type FreeList struct {
	head atomic.Uint64
	next []atomic.Int32
}

// NewFreeList returns a FreeList over capacity slots. full selects whether
// all slots start free (true) or the list starts empty (false, slots are
// pushed individually later).
func NewFreeList(capacity int, full bool) *FreeList {
	fl := &FreeList{next: make([]atomic.Int32, capacity)}
	for i := range fl.next {
		fl.next[i].Store(nilLink)
	}
	if full {
		for i := capacity - 1; i >= 0; i-- {
			fl.Push(i)
		}
	}
	return fl
}

// Push returns slot index i to the free list.
func (fl *FreeList) Push(i int) {
	for {
		old := fl.head.Load()
		gen, top := unpack(old)
		fl.next[i].Store(top - 1)
		next := pack(gen+1, int32(i)+1)
		if fl.head.CompareAndSwap(old, next) {
			return
		}
	}
}

// Pop removes and returns a free slot index, or (-1, false) if empty.
func (fl *FreeList) Pop() (int, bool) {
	for {
		old := fl.head.Load()
		_, top := unpack(old)
		if top == 0 {
			return -1, false
		}
		idx := top - 1
		nextTop := fl.next[idx].Load()
		gen, _ := unpack(old)
		next := pack(gen+1, nextTop+1)
		if fl.head.CompareAndSwap(old, next) {
			return int(idx), true
		}
	}
}

// Empty reports whether the free list currently has no slots. Weakly
// consistent: a concurrent Push/Pop may change the answer immediately after
// this returns.
func (fl *FreeList) Empty() bool {
	_, top := unpack(fl.head.Load())
	return top == 0
}
