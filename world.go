package silo

// World owns every collaborator subsystem (registry, archetypes, entity
// index, managed/shared stores, structural engine) and exposes the upward
// Entity API and Query/CommandBuffer entry points. Releasing a World
// releases all its chunk memory at once; there is no per-entity heap
// allocation on the hot paths that follow.
type World struct {
	config Config

	registry   *Registry
	archetypes *ArchetypeManager
	entities   *EntityIndex
	managed    *ManagedStore
	shared     *SharedStore
	structural *StructuralEngine
	names      *HandleCache[ComponentTypeId]
}

// NewWorld constructs a World with the given configuration. Pass
// DefaultConfig() for sensible defaults.
func NewWorld(config Config) *World {
	registry := NewRegistry()
	archetypes := NewArchetypeManager(registry, config)
	entities := NewEntityIndex()
	managed := NewManagedStore()
	shared := NewSharedStore()
	return &World{
		config:     config,
		registry:   registry,
		archetypes: archetypes,
		entities:   entities,
		managed:    managed,
		shared:     shared,
		structural: NewStructuralEngine(archetypes, entities, managed, shared, registry),
		names:      NewHandleCache[ComponentTypeId](0),
	}
}

// Registry returns the world's component registry, for callers that need
// to register descriptors directly rather than through FactoryNewComponent.
func (w *World) Registry() *Registry { return w.registry }

// RegisterNamed registers spec against the world's registry and caches the
// resulting id under spec.Name, so later callers can resolve a component by
// name alone without holding onto its Go type. FactoryNewComponent and
// FactoryNewManagedComponent both register through this path.
func (w *World) RegisterNamed(spec ComponentSpec) (ComponentTypeId, error) {
	id, err := w.registry.Register(spec)
	if err != nil {
		return id, err
	}
	w.names.Register(spec.Name, id)
	return id, nil
}

// ComponentByName resolves a component previously registered through
// RegisterNamed (including via the Factory) by its descriptor name.
func (w *World) ComponentByName(name string) (ComponentTypeId, bool) {
	id, ok := w.names.GetByKey(name)
	if !ok {
		return 0, false
	}
	return *id, true
}

// Query returns an empty query builder bound to this world.
func (w *World) Query() *Query { return NewQuery(w) }

// Begin returns a fresh CommandBuffer bound to this world, sized per the
// world's configured lane capacity.
func (w *World) Begin() *CommandBuffer {
	return NewCommandBuffer(w, w.config.LaneByteCapacity)
}

// zeroSharedKey builds the all-unset SharedValueKey for an archetype with
// no shared values assigned yet: every shared-managed slot starts at the
// unset sentinel (-1), every shared-unmanaged slot at the minimum-i64
// sentinel, so an assigned zero value keys a different group than an
// unassigned slot.
func zeroSharedKey(a *Archetype) SharedValueKey {
	managed := make([]int32, len(a.sharedManagedIds))
	for i := range managed {
		managed[i] = unsetManagedShared
	}
	unmanaged := make([]int64, len(a.sharedUnmgdIds))
	for i := range unmanaged {
		unmanaged[i] = sentinelUnmanagedShared
	}
	return NewSharedValueKey(managed, unmanaged)
}

// remapSharedKey builds the SharedValueKey a transition into newArchetype
// should carry: for every shared slot newArchetype declares, it reuses
// oldArchetype's value at that type (if oldArchetype carried it and no
// override says otherwise), an override (if provided), or the unset
// sentinel (-1 for managed slots, minimum i64 for unmanaged slots). This is the single place that handles a shared type's
// partition position shifting when shared types are added or removed
// across a transition.
func remapSharedKey(oldA, newA *Archetype, oldKey SharedValueKey, managedOverride map[ComponentTypeId]int32, unmanagedOverride map[ComponentTypeId]int64) SharedValueKey {
	managed := make([]int32, len(newA.sharedManagedIds))
	for i, tid := range newA.sharedManagedIds {
		if v, ok := managedOverride[tid]; ok {
			managed[i] = v
			continue
		}
		if oi := oldA.SharedManagedIndex(tid); oi >= 0 {
			managed[i] = oldKey.ManagedAt(oi)
			continue
		}
		managed[i] = unsetManagedShared
	}
	unmanaged := make([]int64, len(newA.sharedUnmgdIds))
	for i, tid := range newA.sharedUnmgdIds {
		if v, ok := unmanagedOverride[tid]; ok {
			unmanaged[i] = v
			continue
		}
		if oi := oldA.SharedUnmanagedIndex(tid); oi >= 0 {
			unmanaged[i] = oldKey.UnmanagedAt(oi)
			continue
		}
		unmanaged[i] = sentinelUnmanagedShared
	}
	return NewSharedValueKey(managed, unmanaged)
}

// CreateEntity allocates a new entity carrying the given component types,
// all zero-valued. Every typeID must already be registered.
func (w *World) CreateEntity(typeIDs ...ComponentTypeId) (EntityId, error) {
	var m ComponentMask
	for _, tid := range typeIDs {
		if _, ok := w.registry.Descriptor(tid); !ok {
			return 0, UnregisteredTypeError{TypeID: tid}
		}
		m = m.Set(tid)
	}
	archetype := w.archetypes.GetOrCreate(m)
	key := zeroSharedKey(archetype)
	group := archetype.OrCreateGroup(key)

	id := w.entities.NewEntityId()
	loc := group.AddEntity(id)
	w.entities.Put(id, EntityRecord{
		Archetype:  archetype,
		Group:      group,
		GroupKey:   key,
		ChunkIndex: loc.ChunkIndex,
		Slot:       loc.Slot,
		Mask:       m,
	})
	return id, nil
}

// CreateEntities batches the creation of n entities sharing the same
// initial component set, using ChunkGroup's batched allocation.
func (w *World) CreateEntities(n int, typeIDs ...ComponentTypeId) ([]EntityId, error) {
	var m ComponentMask
	for _, tid := range typeIDs {
		if _, ok := w.registry.Descriptor(tid); !ok {
			return nil, UnregisteredTypeError{TypeID: tid}
		}
		m = m.Set(tid)
	}
	archetype := w.archetypes.GetOrCreate(m)
	key := zeroSharedKey(archetype)
	group := archetype.OrCreateGroup(key)

	ids := make([]EntityId, n)
	for i := range ids {
		ids[i] = w.entities.NewEntityId()
	}
	locs := group.AddEntities(ids)
	for i, id := range ids {
		w.entities.Put(id, EntityRecord{
			Archetype:  archetype,
			Group:      group,
			GroupKey:   key,
			ChunkIndex: locs[i].ChunkIndex,
			Slot:       locs[i].Slot,
			Mask:       m,
		})
	}
	return ids, nil
}

// HasComponent reports whether e's current archetype carries typeID.
func (w *World) HasComponent(e EntityId, typeID ComponentTypeId) bool {
	rec, ok := w.entities.Get(e)
	if !ok {
		return false
	}
	return rec.Mask.Has(typeID)
}

// GetComponent returns a zero-copy view of e's bytes for an
// instance-unmanaged typeID, or (nil, false) if absent.
func (w *World) GetComponent(e EntityId, typeID ComponentTypeId) ([]byte, bool) {
	rec, ok := w.entities.Get(e)
	if !ok {
		return nil, false
	}
	col := rec.Archetype.ColumnIndex(typeID)
	if col < 0 {
		return nil, false
	}
	return rec.Group.chunkAt(rec.ChunkIndex).GetColumnSlice(col, rec.Slot), true
}

// GetManaged returns e's managed object for typeID, or (nil, false) if e
// lacks the component.
func (w *World) GetManaged(e EntityId, typeID ComponentTypeId) (any, bool) {
	rec, ok := w.entities.Get(e)
	if !ok {
		return nil, false
	}
	mi := rec.Archetype.ManagedTypeIndex(typeID)
	if mi < 0 {
		return nil, false
	}
	ticket := rec.Group.chunkAt(rec.ChunkIndex).GetManagedTicket(mi, rec.Slot)
	return w.managed.Get(ticket), true
}

// AddComponent adds an instance-unmanaged component to e, copying data into
// its column. A no-op write (the component already present) overwrites the
// existing bytes in place without a structural move.
func (w *World) AddComponent(e EntityId, typeID ComponentTypeId, data []byte) error {
	desc, ok := w.registry.Descriptor(typeID)
	if !ok {
		return UnregisteredTypeError{TypeID: typeID}
	}
	if desc.Kind != InstanceUnmanaged {
		return BadArgumentError{Op: "AddComponent", Detail: "typeID is not instance-unmanaged"}
	}
	old, ok := w.entities.Get(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	if old.Mask.Has(typeID) {
		col := old.Archetype.ColumnIndex(typeID)
		old.Group.chunkAt(old.ChunkIndex).SetColumn(col, old.Slot, data)
		return nil
	}
	newMask := old.Mask.Set(typeID)
	newArchetype := w.archetypes.GetOrCreate(newMask)
	newKey := remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, nil)
	rec, ok := w.structural.MoveEntity(e, old, newMask, newKey)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	// The winner may be a concurrent move to an archetype without typeID;
	// only write the bytes where the surviving record carries the column.
	if col := rec.Archetype.ColumnIndex(typeID); col >= 0 {
		rec.Group.chunkAt(rec.ChunkIndex).SetColumn(col, rec.Slot, data)
	}
	return nil
}

// AddManagedComponent adds an instance-managed component to e, storing obj
// in the managed store and threading its ticket through the move.
func (w *World) AddManagedComponent(e EntityId, typeID ComponentTypeId, obj any) error {
	desc, ok := w.registry.Descriptor(typeID)
	if !ok {
		return UnregisteredTypeError{TypeID: typeID}
	}
	if desc.Kind != InstanceManaged {
		return BadArgumentError{Op: "AddManagedComponent", Detail: "typeID is not instance-managed"}
	}
	old, ok := w.entities.Get(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	if old.Mask.Has(typeID) {
		w.SetManagedComponent(e, typeID, obj)
		return nil
	}
	newMask := old.Mask.Set(typeID)
	newArchetype := w.archetypes.GetOrCreate(newMask)
	newKey := remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, nil)
	rec, ok := w.structural.MoveEntity(e, old, newMask, newKey)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	if mi := rec.Archetype.ManagedTypeIndex(typeID); mi >= 0 {
		ticket := w.managed.Store(obj)
		rec.Group.chunkAt(rec.ChunkIndex).SetManagedTicket(mi, rec.Slot, ticket)
	}
	return nil
}

// SetManagedComponent overwrites e's managed object for typeID in place if
// already present, otherwise behaves as AddManagedComponent.
func (w *World) SetManagedComponent(e EntityId, typeID ComponentTypeId, obj any) error {
	rec, ok := w.entities.Get(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	if !rec.Mask.Has(typeID) {
		return w.AddManagedComponent(e, typeID, obj)
	}
	mi := rec.Archetype.ManagedTypeIndex(typeID)
	chunk := rec.Group.chunkAt(rec.ChunkIndex)
	ticket := chunk.GetManagedTicket(mi, rec.Slot)
	w.managed.Set(ticket, obj)
	return nil
}

// RemoveComponent removes typeID from e. A no-op if e doesn't carry typeID;
// removing an absent component is not an error.
func (w *World) RemoveComponent(e EntityId, typeID ComponentTypeId) error {
	old, ok := w.entities.Get(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	if !old.Mask.Has(typeID) {
		return nil
	}
	newMask := old.Mask.Clear(typeID)
	newArchetype := w.archetypes.GetOrCreate(newMask)
	newKey := remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, nil)
	if _, ok := w.structural.MoveEntity(e, old, newMask, newKey); !ok {
		return EntityNotFoundError{Entity: e}
	}
	return nil
}

// SetSharedManaged interns value and assigns it to e's typeID shared-managed
// slot, adding the component if e doesn't already carry it.
func (w *World) SetSharedManaged(e EntityId, typeID ComponentTypeId, value any) error {
	desc, ok := w.registry.Descriptor(typeID)
	if !ok {
		return UnregisteredTypeError{TypeID: typeID}
	}
	if desc.Kind != SharedManaged {
		return BadArgumentError{Op: "SetSharedManaged", Detail: "typeID is not shared-managed"}
	}
	old, ok := w.entities.Get(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	idx := w.shared.GetOrAdd(value)
	if priorIdx, ok := priorSharedManaged(old, typeID); ok && priorIdx == idx {
		// e already references this exact interned value: the GetOrAdd
		// above added a reference the entity already holds, not a new one.
		w.shared.Release(idx)
		return nil
	}
	newMask := old.Mask.Set(typeID)
	newArchetype := w.archetypes.GetOrCreate(newMask)
	override := map[ComponentTypeId]int32{typeID: idx}
	newKey := remapSharedKey(old.Archetype, newArchetype, old.GroupKey, override, nil)
	if _, ok := w.structural.MoveEntity(e, old, newMask, newKey); !ok {
		return EntityNotFoundError{Entity: e}
	}
	return nil
}

// priorSharedManaged returns the shared-managed index rec currently holds
// for typeID, if rec's archetype carries typeID as a shared-managed
// component.
func priorSharedManaged(rec EntityRecord, typeID ComponentTypeId) (int32, bool) {
	oi := rec.Archetype.SharedManagedIndex(typeID)
	if oi < 0 {
		return 0, false
	}
	return rec.GroupKey.ManagedAt(oi), true
}

// SetSharedUnmanaged assigns value to e's typeID shared-unmanaged slot,
// adding the component if e doesn't already carry it.
func (w *World) SetSharedUnmanaged(e EntityId, typeID ComponentTypeId, value int64) error {
	desc, ok := w.registry.Descriptor(typeID)
	if !ok {
		return UnregisteredTypeError{TypeID: typeID}
	}
	if desc.Kind != SharedUnmanaged {
		return BadArgumentError{Op: "SetSharedUnmanaged", Detail: "typeID is not shared-unmanaged"}
	}
	old, ok := w.entities.Get(e)
	if !ok {
		return EntityNotFoundError{Entity: e}
	}
	newMask := old.Mask.Set(typeID)
	newArchetype := w.archetypes.GetOrCreate(newMask)
	override := map[ComponentTypeId]int64{typeID: value}
	newKey := remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, override)
	if newMask == old.Mask && newKey == old.GroupKey {
		return nil
	}
	if _, ok := w.structural.MoveEntity(e, old, newMask, newKey); !ok {
		return EntityNotFoundError{Entity: e}
	}
	return nil
}

// DestroyEntity releases e's managed tickets and shared-store references,
// frees its chunk slot, and removes it from the entity index. The record
// removal is serialized against concurrent structural moves through the
// entity index's compare-and-delete: a destroy that loses the record race
// re-reads and tears down the entity's new location instead of a stale one.
//
// Only indices >= 0 are released: an unset shared-managed slot was never
// interned, so there is nothing to release for it.
func (w *World) DestroyEntity(e EntityId) error {
	for {
		old, ok := w.entities.Get(e)
		if !ok {
			return EntityNotFoundError{Entity: e}
		}

		// Build the teardown plan against the captured record, then claim
		// it. The plan is only executed once the compare-and-delete proves
		// no move replaced the record after the read.
		chunk := old.Group.chunkAt(old.ChunkIndex)
		tickets := make([]int32, len(old.Archetype.managedIds))
		for mi := range tickets {
			tickets[mi] = chunk.GetManagedTicket(mi, old.Slot)
		}

		if !w.entities.DeleteIfEquals(e, old) {
			continue
		}

		for _, ticket := range tickets {
			w.managed.Release(ticket)
		}
		for i := 0; i < old.GroupKey.NManaged(); i++ {
			if idx := old.GroupKey.ManagedAt(i); idx >= 0 {
				w.shared.Release(idx)
			}
		}
		old.Group.RemoveEntity(Location{ChunkIndex: old.ChunkIndex, Slot: old.Slot})
		return nil
	}
}

// DestroyEntities destroys a batch of entities.
func (w *World) DestroyEntities(entities []EntityId) {
	for _, e := range entities {
		if err := w.DestroyEntity(e); err != nil {
			warnf("DestroyEntities: %v", err)
		}
	}
}
