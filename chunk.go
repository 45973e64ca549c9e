package silo

import (
	"github.com/hiveworks/silo/internal/bits"
)

const defaultChunkCapacity = 64

const noEntity int32 = -1
const noTicket int32 = -1

// Chunk holds up to capacity entities in parallel columnar arrays. Slot
// allocation and release are lock-free: allocate_slot/free_slot only touch
// internal/bits.FreeList (a Treiber stack) and internal/bits.Bitset (atomic
// words), never a mutex.
type Chunk struct {
	capacity int
	strides  []uint32 // byte stride of each unmanaged-instance column
	columns  [][]byte // one backing array per unmanaged-instance column

	managedTickets [][]int32 // one []int32 per managed-instance type, len=capacity

	entityIDs []int32 // -1 = free slot

	occupied *bits.Bitset
	free     *bits.FreeList

	size  countBox
	queue queuedFlag
}

// NewChunk allocates a chunk sized for capacity entities across the given
// unmanaged-instance column strides and managed-instance type count.
func NewChunk(capacity int, unmanagedStrides []uint32, managedTypeCount int) *Chunk {
	if capacity <= 0 {
		capacity = defaultChunkCapacity
	}
	for _, stride := range unmanagedStrides {
		if stride == 0 {
			abort(BadArgumentError{Op: "NewChunk", Detail: "zero-size unmanaged component descriptor"})
		}
	}
	c := &Chunk{
		capacity: capacity,
		strides:  append([]uint32(nil), unmanagedStrides...),
		occupied: bits.NewBitset(capacity),
		free:     bits.NewFreeList(capacity, true),
	}
	c.columns = make([][]byte, len(unmanagedStrides))
	for i, stride := range unmanagedStrides {
		c.columns[i] = make([]byte, int(stride)*capacity)
	}
	c.managedTickets = make([][]int32, managedTypeCount)
	for i := range c.managedTickets {
		col := make([]int32, capacity)
		for j := range col {
			col[j] = noTicket
		}
		c.managedTickets[i] = col
	}
	c.entityIDs = make([]int32, capacity)
	for i := range c.entityIDs {
		c.entityIDs[i] = noEntity
	}
	return c
}

// Capacity returns the chunk's fixed slot count.
func (c *Chunk) Capacity() int { return c.capacity }

// Size returns the current occupied-slot count.
func (c *Chunk) Size() int { return c.size.load() }

// AllocateSlot pops a free slot, installs entityID into it, and returns its
// index. Returns (-1, false) if the chunk is full.
func (c *Chunk) AllocateSlot(entityID EntityId) (int, bool) {
	idx, ok := c.free.Pop()
	if !ok {
		return -1, false
	}
	for _, col := range c.columns {
		stride := len(col) / c.capacity
		clear(col[idx*stride : (idx+1)*stride])
	}
	for _, tickets := range c.managedTickets {
		tickets[idx] = noTicket
	}
	c.entityIDs[idx] = int32(entityID)
	c.occupied.Set(idx)
	if c.size.add(1) > c.capacity {
		abort(OverflowError{Capacity: c.capacity})
	}
	return idx, true
}

// FreeSlot releases slot index. Idempotent: freeing an already-free slot is
// a no-op.
func (c *Chunk) FreeSlot(index int) {
	if index < 0 || index >= c.capacity {
		abort(BadArgumentError{Op: "Chunk.FreeSlot", Detail: "slot index out of range"})
	}
	if c.entityIDs[index] == noEntity {
		return
	}
	c.entityIDs[index] = noEntity
	c.size.add(-1)
	c.occupied.Clear(index)
	c.free.Push(index)
}

// EntityAt returns the entity id occupying slot, or 0 if free.
func (c *Chunk) EntityAt(slot int) EntityId {
	if slot < 0 || slot >= c.capacity {
		abort(BadArgumentError{Op: "Chunk.EntityAt", Detail: "slot index out of range"})
	}
	id := c.entityIDs[slot]
	if id == noEntity {
		return 0
	}
	return EntityId(id)
}

// GetColumnSlice returns a zero-copy view of slot's bytes in column col.
func (c *Chunk) GetColumnSlice(col, slot int) []byte {
	c.checkColumn(col, slot)
	stride := int(c.strides[col])
	base := slot * stride
	return c.columns[col][base : base+stride]
}

// SetColumn copies min(stride, len(src)) bytes into slot's column col.
func (c *Chunk) SetColumn(col, slot int, src []byte) {
	dst := c.GetColumnSlice(col, slot)
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	copy(dst[:n], src[:n])
}

func (c *Chunk) checkColumn(col, slot int) {
	if col < 0 || col >= len(c.columns) {
		abort(BadArgumentError{Op: "Chunk column access", Detail: "column index out of range"})
	}
	if slot < 0 || slot >= c.capacity {
		abort(BadArgumentError{Op: "Chunk column access", Detail: "slot index out of range"})
	}
}

// NextOccupied scans forward from slot `from` (inclusive) for the next
// occupied slot, returning -1 past capacity.
func (c *Chunk) NextOccupied(from int) int {
	return c.occupied.NextSet(from)
}

// GetManagedTicket / SetManagedTicket access the ticket array for managed
// type index mi (the type's position within the archetype's managed
// partition, not its global ComponentTypeId).
func (c *Chunk) GetManagedTicket(mi, slot int) int32 {
	if mi < 0 || mi >= len(c.managedTickets) || slot < 0 || slot >= c.capacity {
		abort(BadArgumentError{Op: "Chunk.GetManagedTicket", Detail: "index out of range"})
	}
	return c.managedTickets[mi][slot]
}

func (c *Chunk) SetManagedTicket(mi, slot int, ticket int32) {
	if mi < 0 || mi >= len(c.managedTickets) || slot < 0 || slot >= c.capacity {
		abort(BadArgumentError{Op: "Chunk.SetManagedTicket", Detail: "index out of range"})
	}
	c.managedTickets[mi][slot] = ticket
}

// TryMarkQueued atomically transitions the chunk's ready-queue membership
// flag 0->1, returning true on success. Used by ChunkGroup to suppress
// duplicate ready-queue entries.
func (c *Chunk) TryMarkQueued() bool {
	return c.queue.tryMark()
}

// MarkDequeued clears the ready-queue membership flag.
func (c *Chunk) MarkDequeued() {
	c.queue.clear()
}

// chunkCapacityFor computes the per-archetype chunk slot count from the sum
// of unmanaged-instance strides and the configured byte budget.
func chunkCapacityFor(byteBudget int, unmanagedStrides []uint32) int {
	var sum uint32
	for _, s := range unmanagedStrides {
		sum += s
	}
	if sum == 0 {
		return defaultChunkCapacity
	}
	cap := byteBudget / int(sum)
	if cap < 1 {
		cap = 1
	}
	return cap
}
