package silo

import (
	"sync"
	"testing"
)

// TestCommandBufferBatchedPlayback has parallel writers enqueue "add V" for
// half of 1000 {P}-entities and "remove P" for the other half, interleaved;
// playback must yield a {P,V} archetype with 500 entities and a {}
// archetype with 500 entities, and it must do so via exactly one batched
// structural move per archetype boundary rather than one move per entity.
func TestCommandBufferBatchedPlayback(t *testing.T) {
	w := newTestWorld()
	p := FactoryNewComponent[testPos](w)
	v := FactoryNewComponent[testVel](w)

	ids, err := w.CreateEntities(1000, p.TypeID)
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}

	cb := w.Begin()
	var wg sync.WaitGroup
	const writers = 4
	wg.Add(writers)
	for wi := 0; wi < writers; wi++ {
		wi := wi
		go func() {
			defer wg.Done()
			writer := cb.Writer()
			for i := wi; i < len(ids); i += writers {
				if i%2 == 0 {
					writer.AddComponent(ids[i], v.TypeID)
				} else {
					writer.RemoveComponent(ids[i], p.TypeID)
				}
			}
		}()
	}
	wg.Wait()

	before := w.structural.MoveBatchCallCount()
	cb.Playback()
	batchCalls := w.structural.MoveBatchCallCount() - before
	if batchCalls != 2 {
		t.Errorf("expected exactly 2 batched structural moves (one per archetype boundary), got %d", batchCalls)
	}

	withPV := w.Query().With(p.TypeID, v.TypeID).Count()
	if withPV != 500 {
		t.Errorf("expected 500 entities in {P,V}, got %d", withPV)
	}
	empty := w.Query().Count()
	if empty != 1000 {
		t.Errorf("expected 1000 total entities across all archetypes, got %d", empty)
	}
	withNeitherCount := 0
	w.archetypes.ForEachArchetype(func(a *Archetype) {
		if a.Mask().IsEmpty() {
			a.ForEachGroup(func(g *ChunkGroup) {
				g.ForEachChunk(func(c *Chunk) {
					withNeitherCount += c.Size()
				})
			})
		}
	})
	if withNeitherCount != 500 {
		t.Errorf("expected 500 entities in {}, got %d", withNeitherCount)
	}
}

// TestCommandBufferAddRemoveRoundTrip checks that playback of
// {add T to e, remove T from e} leaves e in its original archetype. Sort
// order places op=1 (add) before op=2 (remove) for the same entity/type, so
// playback applies add then remove in sequence.
func TestCommandBufferAddRemoveRoundTrip(t *testing.T) {
	w := newTestWorld()
	p := FactoryNewComponent[testPos](w)
	v := FactoryNewComponent[testVel](w)

	id, err := w.CreateEntity(p.TypeID)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	startMask := mustRecord(t, w, id).Mask

	cb := w.Begin()
	writer := cb.Writer()
	writer.AddComponent(id, v.TypeID)
	writer.RemoveComponent(id, v.TypeID)
	cb.Playback()

	endMask := mustRecord(t, w, id).Mask
	if endMask != startMask {
		t.Errorf("mask after playback add+remove = %v, want %v", endMask, startMask)
	}
}

// TestCommandBufferSetSharedManagedRefcount checks the command-buffer path
// for shared-managed writes: the writer contract requires the caller intern
// the value via SharedStore.GetOrAdd before recording the command, and
// playback must treat that as the entity's one live reference rather than
// adding a second one.
func TestCommandBufferSetSharedManagedRefcount(t *testing.T) {
	w := newTestWorld()
	p := FactoryNewComponent[testPos](w)
	teamID, err := w.registry.Register(ComponentSpec{Kind: SharedManaged, Name: "TeamId"})
	if err != nil {
		t.Fatalf("Register TeamId: %v", err)
	}
	id, _ := w.CreateEntity(p.TypeID)

	teamA := testTeam{Name: "A"}
	idx := w.shared.GetOrAdd(teamA)

	cb := w.Begin()
	writer := cb.Writer()
	writer.SetSharedManaged(id, teamID, idx)
	cb.Playback()

	rec := mustRecord(t, w, id)
	sharedPos := rec.Archetype.SharedManagedIndex(teamID)
	if sharedPos < 0 || rec.GroupKey.ManagedAt(sharedPos) != idx {
		t.Fatalf("entity did not end up referencing index %d", idx)
	}
	if got := w.shared.byValue[teamA].refcount; got != 1 {
		t.Errorf("expected refcount 1 after a single command-buffer SetSharedManaged, got %d", got)
	}
}

// TestCommandBufferMutateComponents plays back a combined add/remove and
// checks the entity lands in the mutated archetype with surviving data
// intact.
func TestCommandBufferMutateComponents(t *testing.T) {
	w := newTestWorld()
	p := FactoryNewComponent[testPos](w)
	v := FactoryNewComponent[testVel](w)

	ids, err := w.CreateEntities(20, p.TypeID)
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	for i, id := range ids {
		p.GetEntityPtr(w, id).A = float64(i)
	}

	cb := w.Begin()
	writer := cb.Writer()
	for _, id := range ids {
		if err := writer.MutateComponents(id, []ComponentTypeId{v.TypeID}, nil); err != nil {
			t.Fatalf("MutateComponents: %v", err)
		}
	}
	cb.Playback()

	if got := w.Query().With(p.TypeID, v.TypeID).Count(); got != 20 {
		t.Errorf("expected 20 entities in {P,V} after mutate, got %d", got)
	}
	for i, id := range ids {
		if got := p.GetEntityPtr(w, id).A; got != float64(i) {
			t.Errorf("entity %d: P.A = %v after mutate, want %v", i, got, float64(i))
		}
	}
}

// TestCommandBufferMutateUnregisteredRaisesAtWriteTime checks the write
// contract: mutate surfaces unregistered types immediately, while plain
// add/remove writes silently drop them.
func TestCommandBufferMutateUnregisteredRaisesAtWriteTime(t *testing.T) {
	w := newTestWorld()
	p := FactoryNewComponent[testPos](w)
	id, _ := w.CreateEntity(p.TypeID)

	bogus := ComponentTypeId(200)
	cb := w.Begin()
	writer := cb.Writer()
	if err := writer.MutateComponents(id, []ComponentTypeId{bogus}, nil); err == nil {
		t.Errorf("MutateComponents with an unregistered add should error at write time")
	}

	writer.AddComponent(id, bogus)
	writer.RemoveComponent(id, bogus)
	cb.Playback()

	rec := mustRecord(t, w, id)
	if !rec.Mask.Has(p.TypeID) || rec.Mask.Has(bogus) {
		t.Errorf("silently-dropped writes altered the entity's mask: %v", rec.Mask)
	}
}

// TestCommandBufferDestroyPrecedesOthers checks that destroys sort and
// apply before any other op on the same entity.
func TestCommandBufferDestroyPrecedesOthers(t *testing.T) {
	w := newTestWorld()
	p := FactoryNewComponent[testPos](w)
	v := FactoryNewComponent[testVel](w)

	id, _ := w.CreateEntity(p.TypeID)

	cb := w.Begin()
	writer := cb.Writer()
	writer.AddComponent(id, v.TypeID)
	writer.DestroyEntity(id)
	cb.Playback()

	if _, ok := w.entities.Get(id); ok {
		t.Errorf("entity survived playback of a destroy command")
	}
}
