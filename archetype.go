package silo

import "sync"

type archetypeID uint32

// Archetype groups ChunkGroups for a single ComponentMask and exposes
// column-index lookups. Its four kind-partitioned id lists fix the column
// index (or managed/shared positional index) of every type the archetype
// carries.
type Archetype struct {
	id   archetypeID
	mask ComponentMask

	unmanagedIds     []ComponentTypeId
	managedIds       []ComponentTypeId
	sharedUnmgdIds   []ComponentTypeId
	sharedManagedIds []ComponentTypeId

	unmanagedStrides []uint32
	chunkCapacity    int

	provisionThreshold int
	spinIterations     int

	registry *Registry

	groupsMu sync.RWMutex
	groups   map[SharedValueKey]*ChunkGroup

	columnMu sync.Mutex
	columns  map[ComponentTypeId]int
}

// newArchetype partitions mask's ids by kind and computes the unmanaged
// column layout and per-chunk capacity.
func newArchetype(id archetypeID, mask ComponentMask, registry *Registry, config Config) *Archetype {
	a := &Archetype{
		id:                 id,
		mask:               mask,
		provisionThreshold: config.ProvisionThreshold,
		spinIterations:     config.SpinIterations,
		registry:           registry,
		groups:             make(map[SharedValueKey]*ChunkGroup),
		columns:            make(map[ComponentTypeId]int),
	}
	for _, tid := range mask.ToIdArray() {
		desc, ok := registry.Descriptor(tid)
		if !ok {
			abort(UnregisteredTypeError{TypeID: tid})
		}
		switch desc.Kind {
		case InstanceUnmanaged:
			a.columns[tid] = len(a.unmanagedIds)
			a.unmanagedIds = append(a.unmanagedIds, tid)
			a.unmanagedStrides = append(a.unmanagedStrides, desc.Size)
		case InstanceManaged:
			a.managedIds = append(a.managedIds, tid)
		case SharedUnmanaged:
			a.sharedUnmgdIds = append(a.sharedUnmgdIds, tid)
		case SharedManaged:
			a.sharedManagedIds = append(a.sharedManagedIds, tid)
		}
	}
	a.chunkCapacity = chunkCapacityFor(config.ChunkByteBudget, a.unmanagedStrides)
	return a
}

// ID returns the archetype's stable identity.
func (a *Archetype) ID() uint32 { return uint32(a.id) }

// Mask returns the archetype's component mask.
func (a *Archetype) Mask() ComponentMask { return a.mask }

// OrCreateGroup returns the ChunkGroup for key, creating it if absent.
func (a *Archetype) OrCreateGroup(key SharedValueKey) *ChunkGroup {
	a.groupsMu.RLock()
	g, ok := a.groups[key]
	a.groupsMu.RUnlock()
	if ok {
		return g
	}

	a.groupsMu.Lock()
	defer a.groupsMu.Unlock()
	if g, ok := a.groups[key]; ok {
		return g
	}
	g = NewChunkGroup(a, a.unmanagedStrides, len(a.managedIds), a.chunkCapacity, a.provisionThreshold, a.spinIterations)
	a.groups[key] = g
	return g
}

// Group returns the ChunkGroup for key, if it already exists.
func (a *Archetype) Group(key SharedValueKey) (*ChunkGroup, bool) {
	a.groupsMu.RLock()
	defer a.groupsMu.RUnlock()
	g, ok := a.groups[key]
	return g, ok
}

// groupSnapshot returns a snapshot of all chunk groups (for_each_group).
func (a *Archetype) groupSnapshot() []*ChunkGroup {
	a.groupsMu.RLock()
	defer a.groupsMu.RUnlock()
	out := make([]*ChunkGroup, 0, len(a.groups))
	for _, g := range a.groups {
		out = append(out, g)
	}
	return out
}

// ForEachGroup visits a snapshot of the archetype's chunk groups.
func (a *Archetype) ForEachGroup(visit func(*ChunkGroup)) {
	for _, g := range a.groupSnapshot() {
		visit(g)
	}
}

// ForEachEntity visits every live entity in group's chunks. Weakly
// consistent: entities moved in or out during the walk may or may not be
// visited, but each slot is visited at most once per traversal.
func (a *Archetype) ForEachEntity(group *ChunkGroup, visit func(EntityId)) {
	group.ForEachChunk(func(c *Chunk) {
		for slot := c.NextOccupied(0); slot != -1; slot = c.NextOccupied(slot + 1) {
			visit(c.EntityAt(slot))
		}
	})
}

// ColumnIndex returns the unmanaged-instance column index for tid, or -1 if
// tid is not an unmanaged-instance member of this archetype.
func (a *Archetype) ColumnIndex(tid ComponentTypeId) int {
	a.columnMu.Lock()
	defer a.columnMu.Unlock()
	if idx, ok := a.columns[tid]; ok {
		return idx
	}
	return -1
}

// ManagedTypeIndex returns tid's position within the managed-instance
// partition, or -1 if absent.
func (a *Archetype) ManagedTypeIndex(tid ComponentTypeId) int {
	return indexOf(a.managedIds, tid)
}

// SharedManagedIndex returns tid's position within the shared-managed
// partition, or -1 if absent.
func (a *Archetype) SharedManagedIndex(tid ComponentTypeId) int {
	return indexOf(a.sharedManagedIds, tid)
}

// SharedUnmanagedIndex returns tid's position within the shared-unmanaged
// partition, or -1 if absent.
func (a *Archetype) SharedUnmanagedIndex(tid ComponentTypeId) int {
	return indexOf(a.sharedUnmgdIds, tid)
}

func indexOf(ids []ComponentTypeId, tid ComponentTypeId) int {
	for i, id := range ids {
		if id == tid {
			return i
		}
	}
	return -1
}
