package silo

import (
	"reflect"
	"unsafe"
)

// factory implements the factory pattern for silo components, mirroring
// the teacher's global Factory instance in factory.go.
type factory struct{}

// Factory is the global factory instance for creating silo components.
var Factory factory

// NewWorld creates a new World instance with the given configuration.
func (f factory) NewWorld(config Config) *World {
	return NewWorld(config)
}

// NewQuery creates a new Query instance bound to world.
func (f factory) NewQuery(world *World) *Query {
	return NewQuery(world)
}

// NewCursor creates a new Cursor over the specified query.
func (f factory) NewCursor(query *Query) *Cursor {
	return NewCursor(query)
}

// FactoryNewComponent registers T as an Opaque unmanaged component against
// world's registry (idempotent by T's reflect.Type) and returns a typed
// AccessibleComponent handle for it.
func FactoryNewComponent[T any](world *World) AccessibleComponent[T] {
	var zero T
	t := reflect.TypeOf(zero)
	size := uint32(unsafe.Sizeof(zero))
	align := uint32(1)
	if size > 0 {
		align = size
		if align > 8 {
			align = 8
		}
	}
	id, err := world.RegisterNamed(ComponentSpec{
		GoType: t,
		Kind:   InstanceUnmanaged,
		Name:   t.String(),
		Opaque: true,
		Size:   size,
		Align:  align,
	})
	if err != nil {
		abort(err)
	}
	return AccessibleComponent[T]{TypeID: id}
}

// FactoryNewManagedComponent registers T as an InstanceManaged component
// and returns its ComponentTypeId.
func FactoryNewManagedComponent[T any](world *World) ComponentTypeId {
	var zero T
	t := reflect.TypeOf(zero)
	id, err := world.RegisterNamed(ComponentSpec{
		GoType: t,
		Kind:   InstanceManaged,
		Name:   t.String(),
	})
	if err != nil {
		abort(err)
	}
	return id
}
