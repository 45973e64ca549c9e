package silo

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// SharedFilter pins position i of a shared-value partition to a specific
// managed index or unmanaged value; unset positions are wildcards (spec
// §4.J "exact match on specified positions; wildcard on unspecified").
type SharedFilter struct {
	managedAt   map[int]int32
	unmanagedAt map[int]int64
}

func newSharedFilter() SharedFilter {
	return SharedFilter{managedAt: make(map[int]int32), unmanagedAt: make(map[int]int64)}
}

func (f SharedFilter) matches(key SharedValueKey) bool {
	for i, v := range f.managedAt {
		if key.ManagedAt(i) != v {
			return false
		}
	}
	for i, v := range f.unmanagedAt {
		if key.UnmanagedAt(i) != v {
			return false
		}
	}
	return true
}

// Query is a builder over with/without/any masks, requested component
// types, and shared-value filters.
type Query struct {
	world      *World
	with       ComponentMask
	without    ComponentMask
	any        []ComponentMask
	types      []ComponentTypeId
	sharedOn   SharedFilter
	hasShared  bool
	impossible bool
}

// NewQuery returns an empty builder bound to world.
func NewQuery(world *World) *Query {
	return &Query{world: world, sharedOn: newSharedFilter()}
}

// With requires every id to be present.
func (q *Query) With(ids ...ComponentTypeId) *Query {
	for _, id := range ids {
		q.with = q.with.Set(id)
		q.types = append(q.types, id)
	}
	return q
}

// Without excludes archetypes carrying any of ids.
func (q *Query) Without(ids ...ComponentTypeId) *Query {
	for _, id := range ids {
		q.without = q.without.Set(id)
	}
	return q
}

// Any requires at least one id from this group to be present; may be
// called multiple times to add independent any-groups.
func (q *Query) Any(ids ...ComponentTypeId) *Query {
	var m ComponentMask
	for _, id := range ids {
		m = m.Set(id)
	}
	q.any = append(q.any, m)
	return q
}

// WithSharedManaged pins shared-managed partition position i to a managed
// index.
func (q *Query) WithSharedManaged(position int, index int32) *Query {
	q.hasShared = true
	q.sharedOn.managedAt[position] = index
	return q
}

// WithSharedUnmanaged pins shared-unmanaged partition position i to a
// value.
func (q *Query) WithSharedUnmanaged(position int, value int64) *Query {
	q.hasShared = true
	q.sharedOn.unmanagedAt[position] = value
	return q
}

// WithSharedManagedValue pins shared-managed partition position i to the
// interned index of value. A value never interned matches nothing: the
// query yields zero results rather than skipping the filter.
func (q *Query) WithSharedManagedValue(position int, value any) *Query {
	idx, ok := q.world.shared.Find(value)
	if !ok {
		q.impossible = true
		return q
	}
	return q.WithSharedManaged(position, idx)
}

// Evaluate reports whether archetype matches the builder's with/without/any
// masks.
func (q *Query) Evaluate(a *Archetype) bool {
	if !a.Mask().ContainsAll(q.with) {
		return false
	}
	if a.Mask().Intersects(q.without) {
		return false
	}
	for _, any := range q.any {
		if !any.IsEmpty() && !a.Mask().Intersects(any) {
			return false
		}
	}
	return true
}

// View is a single matched slot the visitor receives during iteration.
type View struct {
	Entity    EntityId
	Archetype *Archetype
	Chunk     *Chunk
	Slot      int
	key       SharedValueKey
	columns   map[ComponentTypeId]int
	world     *World
}

// Component returns a zero-copy byte view for an unmanaged requested type.
func (v View) Component(id ComponentTypeId) []byte {
	col, ok := v.columns[id]
	if !ok {
		return nil
	}
	return v.Chunk.GetColumnSlice(col, v.Slot)
}

// Managed returns the managed object for an instance-managed requested
// type.
func (v View) Managed(id ComponentTypeId) any {
	mi := v.Archetype.ManagedTypeIndex(id)
	if mi < 0 {
		return nil
	}
	ticket := v.Chunk.GetManagedTicket(mi, v.Slot)
	return v.world.managed.Get(ticket)
}

// SharedManaged returns the interned shared value for a shared-managed
// type, resolved through the shared store from this slot's group key, or
// nil if the archetype lacks the type or the slot's value is unset.
func (v View) SharedManaged(id ComponentTypeId) any {
	si := v.Archetype.SharedManagedIndex(id)
	if si < 0 {
		return nil
	}
	return v.world.shared.ValueAt(v.key.ManagedAt(si))
}

// SharedUnmanaged returns the i64 shared value for a shared-unmanaged
// type. The second result is false if the archetype lacks the type or the
// slot's value was never assigned.
func (v View) SharedUnmanaged(id ComponentTypeId) (int64, bool) {
	si := v.Archetype.SharedUnmanagedIndex(id)
	if si < 0 {
		return 0, false
	}
	val := v.key.UnmanagedAt(si)
	if val == sentinelUnmanagedShared {
		return 0, false
	}
	return val, true
}

// Visitor processes one matched view. It must not perform structural
// mutation: queries may only be read during iteration.
type Visitor func(View)

// workItem is one (archetype, group, chunk) combination flattened for
// serial or parallel dispatch, carrying the group's shared-value key so
// views can resolve shared components without re-deriving it per slot.
type workItem struct {
	archetype *Archetype
	chunk     *Chunk
	key       SharedValueKey
}

// flatten walks matching archetypes/groups/chunks and returns the work
// items plus a resolved column-index map, skipping archetypes missing a
// requested type.
func (q *Query) flatten() ([]workItem, map[*Archetype]map[ComponentTypeId]int) {
	var items []workItem
	colCache := make(map[*Archetype]map[ComponentTypeId]int)
	if q.impossible {
		return items, colCache
	}

	q.world.archetypes.ForEachArchetype(func(a *Archetype) {
		if !q.Evaluate(a) {
			return
		}
		cols := make(map[ComponentTypeId]int)
		for _, tid := range q.types {
			if idx := a.ColumnIndex(tid); idx >= 0 {
				cols[tid] = idx
			}
		}
		colCache[a] = cols

		a.ForEachGroup(func(g *ChunkGroup) {
			key := groupKeyOf(a, g)
			if q.hasShared && !q.sharedOn.matches(key) {
				return
			}
			g.ForEachChunk(func(c *Chunk) {
				items = append(items, workItem{archetype: a, chunk: c, key: key})
			})
		})
	})
	return items, colCache
}

// groupKeyOf recovers the SharedValueKey a ChunkGroup was created under.
// Archetype keeps the map directly, so callers that already hold the
// iteration key should prefer that; this helper exists for filter checks
// during ForEachGroup where only the *ChunkGroup is in hand.
func groupKeyOf(a *Archetype, g *ChunkGroup) SharedValueKey {
	a.groupsMu.RLock()
	defer a.groupsMu.RUnlock()
	for k, v := range a.groups {
		if v == g {
			return k
		}
	}
	return SharedValueKey{}
}

// ForEachArchetype visits every archetype matching the builder's masks,
// without descending into groups or chunks.
func (q *Query) ForEachArchetype(visit func(*Archetype)) error {
	if visit == nil {
		return BadArgumentError{Op: "Query.ForEachArchetype", Detail: "nil visitor"}
	}
	if q.impossible {
		return nil
	}
	q.world.archetypes.ForEachArchetype(func(a *Archetype) {
		if q.Evaluate(a) {
			visit(a)
		}
	})
	return nil
}

// ForEachChunk visits every chunk of every matching (archetype, group)
// combination, including chunks with no occupied slots.
func (q *Query) ForEachChunk(visit func(*Archetype, *Chunk)) error {
	if visit == nil {
		return BadArgumentError{Op: "Query.ForEachChunk", Detail: "nil visitor"}
	}
	items, _ := q.flatten()
	for _, item := range items {
		visit(item.archetype, item.chunk)
	}
	return nil
}

// Execute visits every matching slot serially.
func (q *Query) Execute(visit Visitor) error {
	if visit == nil {
		return BadArgumentError{Op: "Query.Execute", Detail: "nil visitor"}
	}
	items, cols := q.flatten()
	for _, item := range items {
		visitChunk(q.world, item, cols[item.archetype], visit)
	}
	return nil
}

// ExecuteParallel visits every matching slot over a worker pool using
// golang.org/x/sync/errgroup. Visitors must be thread-safe and must not
// mutate structure.
func (q *Query) ExecuteParallel(visit Visitor) error {
	if visit == nil {
		return BadArgumentError{Op: "Query.ExecuteParallel", Detail: "nil visitor"}
	}
	items, cols := q.flatten()

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, item := range items {
		item := item
		g.Go(func() error {
			visitChunk(q.world, item, cols[item.archetype], visit)
			return nil
		})
	}
	return g.Wait()
}

// Count returns the number of matching entities without materializing
// views.
func (q *Query) Count() int {
	items, _ := q.flatten()
	n := 0
	for _, item := range items {
		for slot := item.chunk.NextOccupied(0); slot != -1; slot = item.chunk.NextOccupied(slot + 1) {
			n++
		}
	}
	return n
}

func visitChunk(world *World, item workItem, cols map[ComponentTypeId]int, visit Visitor) {
	for slot := item.chunk.NextOccupied(0); slot != -1; slot = item.chunk.NextOccupied(slot + 1) {
		view := View{
			Entity:    item.chunk.EntityAt(slot),
			Archetype: item.archetype,
			Chunk:     item.chunk,
			Slot:      slot,
			key:       item.key,
			columns:   cols,
			world:     world,
		}
		visit(view)
	}
}
