package silo

import "sync"

// sharedEntry is one interned shared value: its index, the value itself,
// and a reference count that drives eviction.
type sharedEntry struct {
	index    int32
	value    any
	refcount int64
}

// SharedStore interns managed shared-component values behind a refcounted
// map: there is no capacity-driven eviction, only refcount-zero eviction.
type SharedStore struct {
	mu      sync.RWMutex
	byValue map[any]*sharedEntry
	byIndex []*sharedEntry // nil once evicted; index reused via free list
	free    []int32
}

// NewSharedStore returns an empty SharedStore.
func NewSharedStore() *SharedStore {
	return &SharedStore{byValue: make(map[any]*sharedEntry)}
}

// GetOrAdd interns value, incrementing its refcount, and returns its index.
// The lookup and the refcount bump both happen under one hold of the write
// lock, so a concurrent Release cannot evict the entry between them.
func (s *SharedStore) GetOrAdd(value any) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byValue[value]; ok {
		e.refcount++
		return e.index
	}

	var idx int32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = int32(len(s.byIndex))
		s.byIndex = append(s.byIndex, nil)
	}
	e := &sharedEntry{index: idx, value: value, refcount: 1}
	s.byIndex[idx] = e
	s.byValue[value] = e
	return idx
}

// Find returns the index already interned for value without changing its
// refcount, or (-1, false) if value was never interned.
func (s *SharedStore) Find(value any) (int32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byValue[value]
	if !ok {
		return -1, false
	}
	return e.index, true
}

// Release decrements the refcount for index, evicting it (making the index
// reusable) once the count drops to zero.
func (s *SharedStore) Release(index int32) {
	if index < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(index) >= len(s.byIndex) || s.byIndex[index] == nil {
		return
	}
	e := s.byIndex[index]
	e.refcount--
	if e.refcount <= 0 {
		delete(s.byValue, e.value)
		s.byIndex[index] = nil
		s.free = append(s.free, index)
	}
}

// ValueAt returns the interned value at index, or nil if unset/evicted.
func (s *SharedStore) ValueAt(index int32) any {
	if index < 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(index) >= len(s.byIndex) || s.byIndex[index] == nil {
		return nil
	}
	return s.byIndex[index].value
}
