package silo

import "unsafe"

// AccessibleComponent is a typed handle onto an Opaque-registered unmanaged
// component, letting callers read/write a whole Go value T directly
// against a Chunk's byte column instead of working with raw []byte. It
// plays the same role as the teacher's table.Accessor[T]: a
// FactoryNewComponent[T]-produced handle bound to one ComponentTypeId.
type AccessibleComponent[T any] struct {
	TypeID ComponentTypeId
}

// Get reads the value at view's column for this component. Returns the
// zero value if the archetype doesn't carry this component.
func (c AccessibleComponent[T]) Get(v View) T {
	var zero T
	col := v.Component(c.TypeID)
	if col == nil {
		return zero
	}
	return *(*T)(unsafe.Pointer(&col[0]))
}

// GetPtr returns a pointer directly into the chunk's backing column,
// letting callers mutate the value in place without a copy. The pointer is
// only valid until the next structural move touching this slot.
func (c AccessibleComponent[T]) GetPtr(v View) *T {
	col := v.Component(c.TypeID)
	if col == nil {
		return nil
	}
	return (*T)(unsafe.Pointer(&col[0]))
}

// Set overwrites the value at view's column for this component.
func (c AccessibleComponent[T]) Set(v View, value T) {
	col := v.Component(c.TypeID)
	if col == nil {
		abort(UnregisteredTypeError{TypeID: c.TypeID})
	}
	*(*T)(unsafe.Pointer(&col[0])) = value
}

// Check reports whether this component is present in v's archetype.
func (c AccessibleComponent[T]) Check(v View) bool {
	return v.Component(c.TypeID) != nil
}

// GetFromEntity reads the component value directly from an entity's
// current record, bypassing query iteration.
func (c AccessibleComponent[T]) GetFromEntity(w *World, e EntityId) (T, bool) {
	var zero T
	rec, ok := w.entities.Get(e)
	if !ok {
		return zero, false
	}
	col := rec.Archetype.ColumnIndex(c.TypeID)
	if col < 0 {
		return zero, false
	}
	bytes := rec.Group.chunkAt(rec.ChunkIndex).GetColumnSlice(col, rec.Slot)
	return *(*T)(unsafe.Pointer(&bytes[0])), true
}

// GetEntityPtr returns a pointer directly into e's backing column for this
// component, or nil if e lacks it. As with GetPtr, the pointer is only
// valid until the next structural move touching e's slot.
func (c AccessibleComponent[T]) GetEntityPtr(w *World, e EntityId) *T {
	rec, ok := w.entities.Get(e)
	if !ok {
		return nil
	}
	col := rec.Archetype.ColumnIndex(c.TypeID)
	if col < 0 {
		return nil
	}
	bytes := rec.Group.chunkAt(rec.ChunkIndex).GetColumnSlice(col, rec.Slot)
	return (*T)(unsafe.Pointer(&bytes[0]))
}
