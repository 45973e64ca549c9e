package silo

import "sync"

// Location identifies a live entity's physical slot within a ChunkGroup.
type Location struct {
	ChunkIndex int
	Slot       int
}

// ChunkGroup provides amortized-O(1) allocation of an entity into some
// chunk with free space, growing its chunk vector on demand. The chunk
// vector is copy-on-grow; reads and growth are split across an RWMutex
// since growth is rare relative to reads.
type ChunkGroup struct {
	archetype        *Archetype
	unmanagedStrides []uint32
	managedTypeCount int
	chunkCapacity    int

	provisionThreshold int
	spinIterations     int

	mu     sync.RWMutex // guards chunks slice growth/reads
	chunks []*Chunk

	appendMu sync.Mutex // ordered-by-identity lock for structural moves
	ready    chan int   // bounded concurrent FIFO of chunk indices with free space
}

// NewChunkGroup returns an empty ChunkGroup for the given archetype, ready
// to lazily spawn chunks of chunkCapacity.
func NewChunkGroup(archetype *Archetype, unmanagedStrides []uint32, managedTypeCount, chunkCapacity, provisionThreshold, spinIterations int) *ChunkGroup {
	if chunkCapacity <= 0 {
		chunkCapacity = defaultChunkCapacity
	}
	if spinIterations < 1 {
		spinIterations = 1
	}
	return &ChunkGroup{
		archetype:          archetype,
		unmanagedStrides:   unmanagedStrides,
		managedTypeCount:   managedTypeCount,
		chunkCapacity:      chunkCapacity,
		provisionThreshold: provisionThreshold,
		spinIterations:     spinIterations,
		ready:              make(chan int, 1024),
	}
}

func (g *ChunkGroup) chunkAt(i int) *Chunk {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chunks[i]
}

func (g *ChunkGroup) chunkCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.chunks)
}

// snapshot returns the current chunk vector for weakly-consistent
// iteration: it reflects the chunks that existed at the instant of the
// call, and later growth or mutation of individual chunks is not
// reflected back into the returned slice.
func (g *ChunkGroup) snapshot() []*Chunk {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Chunk, len(g.chunks))
	copy(out, g.chunks)
	return out
}

// AddEntity allocates a slot for eid, growing the group if necessary.
func (g *ChunkGroup) AddEntity(eid EntityId) Location {
	// Fast path: pop chunk indices believed to have free space.
	if loc, ok := g.tryFastPath(eid); ok {
		return loc
	}

	// Slow path: acquire append mutex, retry fast path, else grow.
	g.appendMu.Lock()
	defer g.appendMu.Unlock()
	return g.addEntityLocked(eid)
}

// tryFastPath attempts up to spinIterations ready-queue pops before the
// caller falls back to the append-mutex slow path. Chunks that turn out
// full on arrival are simply consumed; the queue is a hint, not a promise.
func (g *ChunkGroup) tryFastPath(eid EntityId) (Location, bool) {
	for i := 0; i < g.spinIterations; i++ {
		ci, ok := g.popReady()
		if !ok {
			return Location{}, false
		}
		if loc, ok := g.tryAllocateInto(ci, eid); ok {
			return loc, true
		}
	}
	return Location{}, false
}

// addEntityLocked is AddEntity's slow path. Caller must hold appendMu —
// either directly or through the structural engine's ordered group
// locking, which takes the same mutex before moving entities in.
func (g *ChunkGroup) addEntityLocked(eid EntityId) Location {
	if loc, ok := g.tryFastPath(eid); ok {
		g.provisionIfLow()
		return loc
	}

	ch := NewChunk(g.chunkCapacity, g.unmanagedStrides, g.managedTypeCount)
	g.mu.Lock()
	ci := len(g.chunks)
	g.chunks = append(g.chunks, ch)
	g.mu.Unlock()

	slot, ok := ch.AllocateSlot(eid)
	if !ok {
		abort(InvariantViolationError{Detail: "fresh chunk rejected first allocation"})
	}
	g.requeueIfSpace(ci, ch)
	g.provisionIfLow()
	return Location{ChunkIndex: ci, Slot: slot}
}

// provisionIfLow appends one extra empty chunk when the ready queue's depth
// has fallen below the configured threshold, so the next burst of
// allocations finds capacity waiting instead of hitting the slow path
// again. Caller must hold appendMu.
func (g *ChunkGroup) provisionIfLow() {
	if g.provisionThreshold <= 0 || len(g.ready) >= g.provisionThreshold {
		return
	}
	ch := NewChunk(g.chunkCapacity, g.unmanagedStrides, g.managedTypeCount)
	g.mu.Lock()
	ci := len(g.chunks)
	g.chunks = append(g.chunks, ch)
	g.mu.Unlock()
	if ch.TryMarkQueued() {
		select {
		case g.ready <- ci:
		default:
			ch.MarkDequeued()
		}
	}
}

func (g *ChunkGroup) popReady() (int, bool) {
	select {
	case ci := <-g.ready:
		return ci, true
	default:
		return 0, false
	}
}

// tryAllocateInto dequeues chunk ci and attempts a single allocation into
// it, requeuing it afterward if space remains.
func (g *ChunkGroup) tryAllocateInto(ci int, eid EntityId) (Location, bool) {
	ch := g.chunkAt(ci)
	ch.MarkDequeued()
	slot, ok := ch.AllocateSlot(eid)
	if ok {
		g.requeueIfSpace(ci, ch)
		return Location{ChunkIndex: ci, Slot: slot}, true
	}
	return Location{}, false
}

// fillChunk allocates as many contiguous slots from chunk ci as it has
// free for eids[from:], recording each into locs, then requeues the chunk
// if any space remains. Returns the index just past the last entity it
// could place, so a caller walking eids left-to-right picks up where this
// chunk ran out.
func (g *ChunkGroup) fillChunk(ci int, eids []EntityId, locs []Location, from int) int {
	ch := g.chunkAt(ci)
	ch.MarkDequeued()
	i := from
	for i < len(eids) {
		slot, ok := ch.AllocateSlot(eids[i])
		if !ok {
			break
		}
		locs[i] = Location{ChunkIndex: ci, Slot: slot}
		i++
	}
	g.requeueIfSpace(ci, ch)
	return i
}

// AddEntities allocates slots for eids, draining as many contiguous free
// slots from each chunk it dequeues as that chunk can offer before moving
// on to the next one, rather than popping the ready queue once per entity.
// Returns locations in correspondence with eids.
func (g *ChunkGroup) AddEntities(eids []EntityId) []Location {
	locs := make([]Location, len(eids))
	i := g.drainReady(eids, locs, 0)
	if i >= len(eids) {
		return locs
	}

	g.appendMu.Lock()
	defer g.appendMu.Unlock()
	g.fillRemainderLocked(eids, locs, i)
	return locs
}

// addEntitiesLocked is AddEntities for callers already holding appendMu
// (the structural engine's batched move path).
func (g *ChunkGroup) addEntitiesLocked(eids []EntityId) []Location {
	locs := make([]Location, len(eids))
	g.fillRemainderLocked(eids, locs, 0)
	return locs
}

// drainReady walks ready-queue entries filling chunks left to right until
// either every entity from index i onward is placed or the queue runs dry.
// Returns the index just past the last placed entity.
func (g *ChunkGroup) drainReady(eids []EntityId, locs []Location, i int) int {
	for i < len(eids) {
		ci, ok := g.popReady()
		if !ok {
			break
		}
		i = g.fillChunk(ci, eids, locs, i)
	}
	return i
}

// fillRemainderLocked places eids[i:], retrying the ready queue first
// (another goroutine may have produced capacity before the lock was won),
// then growing chunk-by-chunk, filling each fresh chunk to capacity or to
// the remaining count before creating the next one. Caller must hold
// appendMu.
func (g *ChunkGroup) fillRemainderLocked(eids []EntityId, locs []Location, i int) {
	for i < len(eids) {
		if ci, ok := g.popReady(); ok {
			i = g.fillChunk(ci, eids, locs, i)
			continue
		}

		ch := NewChunk(g.chunkCapacity, g.unmanagedStrides, g.managedTypeCount)
		g.mu.Lock()
		ci := len(g.chunks)
		g.chunks = append(g.chunks, ch)
		g.mu.Unlock()

		before := i
		i = g.fillChunk(ci, eids, locs, i)
		if i == before {
			abort(InvariantViolationError{Detail: "fresh chunk rejected first allocation"})
		}
	}
	g.provisionIfLow()
}

func (g *ChunkGroup) requeueIfSpace(ci int, ch *Chunk) {
	if ch.Size() < ch.Capacity() && ch.TryMarkQueued() {
		select {
		case g.ready <- ci:
		default:
			ch.MarkDequeued()
		}
	}
}

// RemoveEntity frees loc's slot and, if space opens up, re-enqueues the
// chunk onto the ready queue.
func (g *ChunkGroup) RemoveEntity(loc Location) {
	ch := g.chunkAt(loc.ChunkIndex)
	ch.FreeSlot(loc.Slot)
	g.requeueIfSpace(loc.ChunkIndex, ch)
}

// RemoveEntities frees a batch of locations, grouping them by chunk first
// so each touched chunk is re-checked for the ready queue once, rather
// than once per entity freed.
func (g *ChunkGroup) RemoveEntities(locs []Location) {
	order := make([]int, 0, len(locs))
	slotsByChunk := make(map[int][]int, len(locs))
	for _, loc := range locs {
		if _, seen := slotsByChunk[loc.ChunkIndex]; !seen {
			order = append(order, loc.ChunkIndex)
		}
		slotsByChunk[loc.ChunkIndex] = append(slotsByChunk[loc.ChunkIndex], loc.Slot)
	}
	for _, ci := range order {
		ch := g.chunkAt(ci)
		for _, slot := range slotsByChunk[ci] {
			ch.FreeSlot(slot)
		}
		g.requeueIfSpace(ci, ch)
	}
}

// ForEachChunk visits a snapshot of the group's chunks. Concurrent growth
// during the walk is not reflected in the snapshot already taken.
func (g *ChunkGroup) ForEachChunk(visit func(*Chunk)) {
	for _, ch := range g.snapshot() {
		visit(ch)
	}
}
