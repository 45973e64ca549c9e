package silo

// transition is one entity's resolved (new mask, new shared key) for a
// command-buffer batch, computed before any locks are taken so sibling
// transitions sharing a source location can be grouped into one batched
// Structural Engine call by (source archetype, source group, target).
type transition struct {
	entity  EntityId
	old     EntityRecord
	newMask ComponentMask
	newKey  SharedValueKey
}

// transKey groups transitions that can share one batched MoveEntities call:
// same source archetype, same source chunk group, and the same
// destination (mask, shared key).
type transKey struct {
	oldArchetype *Archetype
	oldGroup     *ChunkGroup
	newMask      ComponentMask
	newKey       SharedValueKey
}

// dispatchBatch applies one command-buffer batch (a run of commands sharing
// a batch key) against the world. Destroys are applied per-entity; every
// other op resolves a target transition per
// entity, then regroups by source location before calling the Structural
// Engine so each (source archetype, source group, target) combination
// moves in a single batched call.
func (w *World) dispatchBatch(cmds []interpreted) {
	if len(cmds) == 0 {
		return
	}
	if cmds[0].op == opDestroyEntity {
		for _, c := range cmds {
			if err := w.DestroyEntity(c.entity); err != nil {
				warnf("playback: destroy entity %d: %v", c.entity, err)
			}
		}
		return
	}

	trans := make([]transition, 0, len(cmds))
	for _, c := range cmds {
		old, ok := w.entities.Get(c.entity)
		if !ok {
			warnf("playback: entity %d not found, skipping", c.entity)
			w.releaseSkippedSharedRef(c)
			continue
		}
		newMask, newKey, err := w.resolveTransition(c, old)
		if err != nil {
			warnf("playback: %v", err)
			w.releaseSkippedSharedRef(c)
			continue
		}
		if newMask == old.Mask && newKey == old.GroupKey {
			// No-op: e.g. RemoveComponent of an absent type, or a
			// SetSharedManaged to the value e already holds. In the latter
			// case c.sharedIndex's write-time reference (required by the
			// Writer.SetSharedManaged contract) was never consumed by a
			// move, so it must be released here instead of leaking.
			if c.op == opSetSharedManaged {
				w.shared.Release(c.sharedIndex)
			}
			continue
		}
		trans = append(trans, transition{entity: c.entity, old: old, newMask: newMask, newKey: newKey})
	}
	w.applyTransitions(trans)
}

// resolveTransition computes the destination mask/shared-key for a single
// decoded command against its entity's current record. It never applies
// the move itself, so batches can be grouped before any locks are taken.
func (w *World) resolveTransition(c interpreted, old EntityRecord) (ComponentMask, SharedValueKey, error) {
	switch c.op {
	case opAddComponent:
		if _, ok := w.registry.Descriptor(c.typeID); !ok {
			return old.Mask, old.GroupKey, UnregisteredTypeError{TypeID: c.typeID}
		}
		newMask := old.Mask.Set(c.typeID)
		newArchetype := w.archetypes.GetOrCreate(newMask)
		return newMask, remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, nil), nil

	case opRemoveComponent:
		if !old.Mask.Has(c.typeID) {
			return old.Mask, old.GroupKey, nil
		}
		newMask := old.Mask.Clear(c.typeID)
		newArchetype := w.archetypes.GetOrCreate(newMask)
		return newMask, remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, nil), nil

	case opSetSharedManaged:
		// c.sharedIndex is already a live reference: the writer contract
		// requires interning via SharedStore.GetOrAdd at write time, so
		// playback must reuse that index as-is rather than re-adding it
		// (which would double-count the refcount).
		desc, ok := w.registry.Descriptor(c.typeID)
		if !ok {
			return old.Mask, old.GroupKey, UnregisteredTypeError{TypeID: c.typeID}
		}
		if desc.Kind != SharedManaged {
			return old.Mask, old.GroupKey, BadArgumentError{Op: "playback SetSharedManaged", Detail: "typeID is not shared-managed"}
		}
		newMask := old.Mask.Set(c.typeID)
		newArchetype := w.archetypes.GetOrCreate(newMask)
		override := map[ComponentTypeId]int32{c.typeID: c.sharedIndex}
		return newMask, remapSharedKey(old.Archetype, newArchetype, old.GroupKey, override, nil), nil

	case opMutateComponents:
		newMask := old.Mask
		for _, id := range c.add {
			if _, ok := w.registry.Descriptor(id); !ok {
				return old.Mask, old.GroupKey, UnregisteredTypeError{TypeID: id}
			}
			newMask = newMask.Set(id)
		}
		for _, id := range c.remove {
			newMask = newMask.Clear(id)
		}
		newArchetype := w.archetypes.GetOrCreate(newMask)
		return newMask, remapSharedKey(old.Archetype, newArchetype, old.GroupKey, nil, nil), nil
	}
	return old.Mask, old.GroupKey, nil
}

// releaseSkippedSharedRef drops the write-time shared-store reference a
// SetSharedManaged command pinned, when playback skips the command without
// any move ever consuming that reference.
func (w *World) releaseSkippedSharedRef(c interpreted) {
	if c.op == opSetSharedManaged {
		w.shared.Release(c.sharedIndex)
	}
}

// applyTransitions groups transitions by source location and destination,
// then issues one Structural Engine call per group.
func (w *World) applyTransitions(trans []transition) {
	groups := make(map[transKey][]transition)
	order := make([]transKey, 0)
	for _, t := range trans {
		k := transKey{oldArchetype: t.old.Archetype, oldGroup: t.old.Group, newMask: t.newMask, newKey: t.newKey}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}
	for _, k := range order {
		g := groups[k]
		if len(g) == 1 {
			w.structural.MoveEntity(g[0].entity, g[0].old, g[0].newMask, g[0].newKey)
			continue
		}
		eids := make([]EntityId, len(g))
		olds := make([]EntityRecord, len(g))
		for i, t := range g {
			eids[i] = t.entity
			olds[i] = t.old
		}
		w.structural.MoveEntities(eids, olds, k.newMask, k.newKey)
	}
}
