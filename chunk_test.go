package silo

import "testing"

// TestChunkCapacityOneAdmitsExactlyOne covers spec §8 boundary behavior: a
// chunk of capacity 1 admits exactly one entity; the second allocation
// reports full.
func TestChunkCapacityOneAdmitsExactlyOne(t *testing.T) {
	c := NewChunk(1, []uint32{4}, 0)
	if _, ok := c.AllocateSlot(1); !ok {
		t.Fatalf("first allocation should succeed")
	}
	if _, ok := c.AllocateSlot(2); ok {
		t.Fatalf("second allocation on a capacity-1 chunk should report full")
	}
}

// TestChunkNextOccupiedEmpty covers spec §8: next_occupied(0) on an empty
// chunk returns -1.
func TestChunkNextOccupiedEmpty(t *testing.T) {
	c := NewChunk(8, []uint32{4}, 0)
	if got := c.NextOccupied(0); got != -1 {
		t.Errorf("NextOccupied(0) on empty chunk = %d, want -1", got)
	}
}

// TestChunkDoubleFreeIsNoOp covers spec §8: double-free of a chunk slot is
// a no-op.
func TestChunkDoubleFreeIsNoOp(t *testing.T) {
	c := NewChunk(4, []uint32{4}, 0)
	slot, _ := c.AllocateSlot(1)
	c.FreeSlot(slot)
	if c.Size() != 0 {
		t.Fatalf("size after single free = %d, want 0", c.Size())
	}
	c.FreeSlot(slot) // should not panic or go negative
	if c.Size() != 0 {
		t.Errorf("size after double free = %d, want 0", c.Size())
	}
}

// TestChunkAllocateZeroesColumnsAndTickets ensures a reused slot starts
// clean: zeroed unmanaged bytes and reset managed tickets (spec §4.B
// AllocateSlot steps 1-2).
func TestChunkAllocateZeroesColumnsAndTickets(t *testing.T) {
	c := NewChunk(4, []uint32{8}, 1)
	slot, _ := c.AllocateSlot(1)
	c.SetColumn(0, slot, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.SetManagedTicket(0, slot, 7)
	c.FreeSlot(slot)

	slot2, _ := c.AllocateSlot(2)
	if slot2 != slot {
		t.Fatalf("expected slot reuse, got %d want %d", slot2, slot)
	}
	for _, b := range c.GetColumnSlice(0, slot2) {
		if b != 0 {
			t.Fatalf("reused slot column not zeroed: %v", c.GetColumnSlice(0, slot2))
		}
	}
	if got := c.GetManagedTicket(0, slot2); got != noTicket {
		t.Errorf("reused slot ticket = %d, want %d", got, noTicket)
	}
}

// TestChunkColumnRoundTrip exercises SetColumn/GetColumnSlice bounds and
// zero-copy semantics.
func TestChunkColumnRoundTrip(t *testing.T) {
	c := NewChunk(4, []uint32{4, 2}, 0)
	slot, _ := c.AllocateSlot(9)
	c.SetColumn(0, slot, []byte{1, 2, 3, 4})
	c.SetColumn(1, slot, []byte{5, 6})

	got0 := c.GetColumnSlice(0, slot)
	got1 := c.GetColumnSlice(1, slot)
	want0 := []byte{1, 2, 3, 4}
	want1 := []byte{5, 6}
	for i := range want0 {
		if got0[i] != want0[i] {
			t.Errorf("column 0 byte %d = %d, want %d", i, got0[i], want0[i])
		}
	}
	for i := range want1 {
		if got1[i] != want1[i] {
			t.Errorf("column 1 byte %d = %d, want %d", i, got1[i], want1[i])
		}
	}
}

// TestChunkZeroStrideRejected covers spec §8 boundary behavior: creating a
// chunk for a zero-size unmanaged descriptor raises bad-argument.
func TestChunkZeroStrideRejected(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("NewChunk with a zero stride should panic with bad-argument")
		}
	}()
	NewChunk(8, []uint32{0}, 0)
}

// TestChunkCapacityFallback covers spec §4.B: sum(unmanaged_strides) == 0
// falls back to 64.
func TestChunkCapacityFallback(t *testing.T) {
	if got := chunkCapacityFor(16*1024, nil); got != defaultChunkCapacity {
		t.Errorf("chunkCapacityFor with no strides = %d, want %d", got, defaultChunkCapacity)
	}
	if got := chunkCapacityFor(16, []uint32{1024}); got != 1 {
		t.Errorf("chunkCapacityFor clamps to at least 1, got %d", got)
	}
}
