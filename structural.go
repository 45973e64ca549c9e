package silo

import (
	"sync/atomic"
	"unsafe"
)

// StructuralEngine performs entity moves between archetypes/groups,
// copying column bytes and managed tickets and updating shared-store
// refcounts along the way.
type StructuralEngine struct {
	archetypes *ArchetypeManager
	entities   *EntityIndex
	managed    *ManagedStore
	shared     *SharedStore
	registry   *Registry

	moveCalls      atomic.Int64
	moveBatchCalls atomic.Int64
}

// NewStructuralEngine wires the engine's collaborators together.
func NewStructuralEngine(archetypes *ArchetypeManager, entities *EntityIndex, managed *ManagedStore, shared *SharedStore, registry *Registry) *StructuralEngine {
	return &StructuralEngine{archetypes: archetypes, entities: entities, managed: managed, shared: shared, registry: registry}
}

// MoveCallCount returns the number of single-entity MoveEntity calls made
// so far, for tests that need to assert on batching behavior.
func (se *StructuralEngine) MoveCallCount() int64 { return se.moveCalls.Load() }

// MoveBatchCallCount returns the number of batched MoveEntities calls made
// so far, for tests that need to assert on batching behavior.
func (se *StructuralEngine) MoveBatchCallCount() int64 { return se.moveBatchCalls.Load() }

// groupLock orders a pair of group mutexes by identity (lower address
// first) to prevent deadlock when both must be held.
func groupLock(a, b *ChunkGroup) func() {
	if a == b || a == nil {
		if b == nil {
			return func() {}
		}
		b.appendMu.Lock()
		return b.appendMu.Unlock
	}
	if b == nil {
		a.appendMu.Lock()
		return a.appendMu.Unlock
	}
	pa, pb := groupIdentity(a), groupIdentity(b)
	if pa == pb {
		a.appendMu.Lock()
		return a.appendMu.Unlock
	}
	first, second := a, b
	if pb < pa {
		first, second = b, a
	}
	first.appendMu.Lock()
	second.appendMu.Lock()
	return func() {
		second.appendMu.Unlock()
		first.appendMu.Unlock()
	}
}

func groupIdentity(g *ChunkGroup) uintptr {
	return uintptr(unsafe.Pointer(g))
}

// MoveEntity relocates eid from its current record to newMask/newSharedKey,
// copying surviving columns and tickets and releasing what doesn't survive.
// The second result is false when a concurrent destroy removed the entity
// before the move's record swap won; the move is then fully rolled back.
func (se *StructuralEngine) MoveEntity(eid EntityId, old EntityRecord, newMask ComponentMask, newSharedKey SharedValueKey) (EntityRecord, bool) {
	se.moveCalls.Add(1)
	newArchetype := se.archetypes.GetOrCreate(newMask)
	newGroup := newArchetype.OrCreateGroup(newSharedKey)

	oldGroup := old.Group

	unlock := groupLock(oldGroup, newGroup)
	defer unlock()

	// addEntityLocked, not AddEntity: groupLock above already holds
	// newGroup's append mutex, and sync.Mutex is not reentrant.
	newLoc := newGroup.addEntityLocked(eid)
	newChunk := newGroup.chunkAt(newLoc.ChunkIndex)

	if oldGroup != nil {
		oldChunk := oldGroup.chunkAt(old.ChunkIndex)
		se.copySurvivingState(old.Archetype, oldChunk, old.Slot, newArchetype, newChunk, newLoc.Slot, old.Mask, newMask)
		oldGroup.RemoveEntity(Location{ChunkIndex: old.ChunkIndex, Slot: old.Slot})
	}

	newRecord := EntityRecord{
		Archetype:  newArchetype,
		Group:      newGroup,
		GroupKey:   newSharedKey,
		ChunkIndex: newLoc.ChunkIndex,
		Slot:       newLoc.Slot,
		Mask:       newMask,
	}
	return se.installRecord(eid, old, newRecord, newGroup, newLoc, newSharedKey)
}

// installRecord publishes newRecord for eid via compare-and-swap against
// old. Same-entity operations are serialized, not merged: a loser
// surrenders the slot it allocated and the shared references this move
// pinned (positions it changed relative to old), leaving the winner's
// record in place. The winner may be another move — the winner's record is
// returned — or a destroy, in which case the entity is gone and the second
// result is false.
func (se *StructuralEngine) installRecord(eid EntityId, old, newRecord EntityRecord, newGroup *ChunkGroup, newLoc Location, newKey SharedValueKey) (EntityRecord, bool) {
	if se.entities.CompareAndSwap(eid, old, newRecord) {
		se.adjustSharedRefcounts(old.GroupKey, newKey)
		return newRecord, true
	}
	newGroup.RemoveEntity(newLoc)
	se.adjustSharedRefcounts(newKey, old.GroupKey)
	return se.entities.Get(eid)
}

// copySurvivingState copies unmanaged columns and managed tickets for
// typeIds present in both masks, and releases managed tickets that don't
// survive into the new mask.
func (se *StructuralEngine) copySurvivingState(oldA *Archetype, oldChunk *Chunk, oldSlot int, newA *Archetype, newChunk *Chunk, newSlot int, oldMask, newMask ComponentMask) {
	for _, tid := range oldA.unmanagedIds {
		if !newMask.Has(tid) {
			continue
		}
		oldCol := oldA.ColumnIndex(tid)
		newCol := newA.ColumnIndex(tid)
		if oldCol < 0 || newCol < 0 {
			continue
		}
		newChunk.SetColumn(newCol, newSlot, oldChunk.GetColumnSlice(oldCol, oldSlot))
	}

	for mi, tid := range oldA.managedIds {
		ticket := oldChunk.GetManagedTicket(mi, oldSlot)
		if newMask.Has(tid) {
			if newMi := newA.ManagedTypeIndex(tid); newMi >= 0 {
				newChunk.SetManagedTicket(newMi, newSlot, ticket)
			}
			continue
		}
		se.managed.Release(ticket)
	}
}

// adjustSharedRefcounts releases old shared-managed indices that changed
// and aren't reused in newKey. The new index is assumed already referenced
// by the caller (GetOrAdd happened at write time). Each old index is matched
// against an unclaimed occurrence anywhere in newKey, since a type's
// partition position can shift between archetypes.
func (se *StructuralEngine) adjustSharedRefcounts(oldKey, newKey SharedValueKey) {
	var claimed [8]bool
	for i := 0; i < oldKey.NManaged(); i++ {
		oldIdx := oldKey.ManagedAt(i)
		if oldIdx < 0 {
			continue
		}
		reused := false
		for j := 0; j < newKey.NManaged(); j++ {
			if !claimed[j] && newKey.ManagedAt(j) == oldIdx {
				claimed[j], reused = true, true
				break
			}
		}
		if !reused {
			se.shared.Release(oldIdx)
		}
	}
}

// MoveEntities performs a batched move for entities sharing the same
// (old archetype, new archetype, old group, new group) transition,
// allocating all new slots in one batched call before copying state and
// removing from the old group in one batched call.
func (se *StructuralEngine) MoveEntities(eids []EntityId, olds []EntityRecord, newMask ComponentMask, newSharedKey SharedValueKey) []EntityRecord {
	if len(eids) == 0 {
		return nil
	}
	se.moveBatchCalls.Add(1)
	newArchetype := se.archetypes.GetOrCreate(newMask)
	newGroup := newArchetype.OrCreateGroup(newSharedKey)

	var oldGroup *ChunkGroup
	if olds[0].Group != nil {
		oldGroup = olds[0].Group
	}

	unlock := groupLock(oldGroup, newGroup)
	defer unlock()

	newLocs := newGroup.addEntitiesLocked(eids)

	oldLocs := make([]Location, len(olds))
	for i, old := range olds {
		oldLocs[i] = Location{ChunkIndex: old.ChunkIndex, Slot: old.Slot}
		newChunk := newGroup.chunkAt(newLocs[i].ChunkIndex)
		if oldGroup != nil {
			oldChunk := oldGroup.chunkAt(old.ChunkIndex)
			se.copySurvivingState(old.Archetype, oldChunk, old.Slot, newArchetype, newChunk, newLocs[i].Slot, old.Mask, newMask)
		}
	}
	if oldGroup != nil {
		oldGroup.RemoveEntities(oldLocs)
	}

	out := make([]EntityRecord, len(eids))
	for i, eid := range eids {
		newRecord := EntityRecord{
			Archetype:  newArchetype,
			Group:      newGroup,
			GroupKey:   newSharedKey,
			ChunkIndex: newLocs[i].ChunkIndex,
			Slot:       newLocs[i].Slot,
			Mask:       newMask,
		}
		// An entry that lost its record race to a destroy stays zero.
		out[i], _ = se.installRecord(eid, olds[i], newRecord, newGroup, newLocs[i], newSharedKey)
	}
	return out
}
