package silo

import (
	"sync"
	"sync/atomic"
)

// EntityId is a dense positive integer entity handle. 0 is reserved for "no
// entity"; slot-free sentinels inside a Chunk use int32 -1 instead and are
// converted at the Chunk boundary.
type EntityId uint32

// EntityRecord is the Entity Index's record for a live entity: where it
// currently lives and its current composition. EntityRecord is a plain,
// comparable value so EntityIndex can replace it with a single
// compare-and-swap, serializing concurrent operations on the same entity
// so exactly one wins.
type EntityRecord struct {
	Archetype  *Archetype
	Group      *ChunkGroup
	GroupKey   SharedValueKey
	ChunkIndex int
	Slot       int
	Mask       ComponentMask
}

// EntityIndex is the concurrent entityId -> EntityRecord map. A single
// RWMutex guards the map; CompareAndSwap compares-then-replaces under that
// same lock, so from every caller's perspective a record transition is a
// single atomic step.
type EntityIndex struct {
	mu      sync.RWMutex
	records map[EntityId]EntityRecord
	nextID  atomic.Uint32
}

// NewEntityIndex returns an empty EntityIndex.
func NewEntityIndex() *EntityIndex {
	return &EntityIndex{records: make(map[EntityId]EntityRecord)}
}

// NewEntityId allocates the next dense entity id (never returns 0).
func (idx *EntityIndex) NewEntityId() EntityId {
	return EntityId(idx.nextID.Add(1))
}

// Get returns the record for id, if present.
func (idx *EntityIndex) Get(id EntityId) (EntityRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[id]
	return rec, ok
}

// Put unconditionally installs rec for id (entity creation).
func (idx *EntityIndex) Put(id EntityId, rec EntityRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records[id] = rec
}

// CompareAndSwap atomically replaces old with new for id, succeeding only
// if the current record still equals old. This is the serialization point
// for concurrent structural operations racing on one entity.
func (idx *EntityIndex) CompareAndSwap(id EntityId, old, new EntityRecord) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cur, ok := idx.records[id]
	if !ok || cur != old {
		return false
	}
	idx.records[id] = new
	return true
}

// DeleteIfEquals removes id's record only if it still equals old,
// serializing destroys against concurrent structural moves the same way
// CompareAndSwap serializes record replacement. Returns false if the
// record changed or is already gone.
func (idx *EntityIndex) DeleteIfEquals(id EntityId, old EntityRecord) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cur, ok := idx.records[id]
	if !ok || cur != old {
		return false
	}
	delete(idx.records, id)
	return true
}

// Len returns the number of live entity records.
func (idx *EntityIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}
