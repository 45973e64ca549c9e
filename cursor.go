package silo

import "iter"

// Cursor provides pull-based iteration over a Query's matched slots, as an
// alternative to the push-based Visitor callback Query.Execute uses.
type Cursor struct {
	query *Query

	items []workItem
	cols  map[*Archetype]map[ComponentTypeId]int

	itemIndex int
	slot      int

	initialized bool
}

// NewCursor returns a Cursor over query's current matches. The match set is
// computed lazily on the first Next()/Entities() call.
func NewCursor(q *Query) *Cursor {
	return &Cursor{query: q}
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	c.items, c.cols = c.query.flatten()
	c.itemIndex = 0
	c.slot = -1
	c.initialized = true
}

// Next advances the cursor to the next matched slot, returning false once
// exhausted.
func (c *Cursor) Next() bool {
	c.initialize()
	for c.itemIndex < len(c.items) {
		chunk := c.items[c.itemIndex].chunk
		next := chunk.NextOccupied(c.slot + 1)
		if next != -1 {
			c.slot = next
			return true
		}
		c.itemIndex++
		c.slot = -1
	}
	return false
}

// View returns the View for the cursor's current position. Only valid
// immediately after a Next() call that returned true.
func (c *Cursor) View() View {
	item := c.items[c.itemIndex]
	return View{
		Entity:    item.chunk.EntityAt(c.slot),
		Archetype: item.archetype,
		Chunk:     item.chunk,
		Slot:      c.slot,
		key:       item.key,
		columns:   c.cols[item.archetype],
		world:     c.query.world,
	}
}

// Reset rewinds the cursor to re-scan from the start, recomputing the
// match set.
func (c *Cursor) Reset() {
	c.initialized = false
	c.items = nil
	c.cols = nil
	c.itemIndex = 0
	c.slot = -1
}

// Entities returns a Go 1.23 iterator sequence over matched views, letting
// callers range directly: `for v := range cursor.Entities() { ... }`.
func (c *Cursor) Entities() iter.Seq[View] {
	return func(yield func(View) bool) {
		c.Reset()
		for c.Next() {
			if !yield(c.View()) {
				c.Reset()
				return
			}
		}
	}
}

// TotalMatched returns the total number of entities the cursor's query
// matches, without consuming cursor position.
func (c *Cursor) TotalMatched() int {
	return c.query.Count()
}
