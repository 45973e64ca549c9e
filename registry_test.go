package silo

import (
	"reflect"
	"testing"
)

func TestRegistryIdempotentByType(t *testing.T) {
	r := NewRegistry()
	id1, err := r.Register(ComponentSpec{GoType: nil, Kind: InstanceUnmanaged, Name: "first"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	type marker struct{}
	spec := ComponentSpec{
		GoType: reflect.TypeOf(marker{}),
		Kind:   InstanceUnmanaged, Name: "typed", Opaque: true, Size: 4, Align: 4,
	}
	id2, err := r.Register(spec)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	id3, err := r.Register(spec)
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if id2 != id3 {
		t.Errorf("re-registration by identity returned a new id: %d vs %d", id2, id3)
	}
	if id1 == id2 {
		t.Errorf("distinct registrations collided on id %d", id1)
	}
}

func TestSequentialLayoutNoPadding(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(ComponentSpec{
		Kind:   InstanceUnmanaged,
		Name:   "seq",
		Policy: Sequential,
		Fields: []FieldDescriptor{
			{Name: "a", Kind: KindI8, Size: 1},
			{Name: "b", Kind: KindI64, Size: 8},
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	desc, _ := r.Descriptor(id)
	if desc.Size != 9 {
		t.Errorf("Sequential total size = %d, want 9 (no padding)", desc.Size)
	}
	if desc.Fields[1].Offset != 1 {
		t.Errorf("Sequential field b offset = %d, want 1", desc.Fields[1].Offset)
	}
}

func TestPaddingLayoutAligns(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(ComponentSpec{
		Kind:   InstanceUnmanaged,
		Name:   "pad",
		Policy: Padding,
		Fields: []FieldDescriptor{
			{Name: "a", Kind: KindI8, Size: 1, Align: 1},
			{Name: "b", Kind: KindI64, Size: 8, Align: 8},
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	desc, _ := r.Descriptor(id)
	if desc.Fields[1].Offset != 8 {
		t.Errorf("Padding field b offset = %d, want 8", desc.Fields[1].Offset)
	}
	if desc.Size != 16 {
		t.Errorf("Padding total size = %d, want 16 (aligned up to 8)", desc.Size)
	}
}

func TestExplicitLayoutRejectsOverlap(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ComponentSpec{
		Kind:   InstanceUnmanaged,
		Name:   "bad",
		Policy: Explicit,
		Fields: []FieldDescriptor{
			{Name: "a", Kind: KindI32, Size: 4, Offset: 0},
			{Name: "b", Kind: KindI32, Size: 4, Offset: 2},
		},
	})
	var badLayout BadLayoutError
	if !isBadLayout(err, &badLayout) {
		t.Fatalf("expected BadLayoutError for overlapping explicit offsets, got %v", err)
	}
}

func isBadLayout(err error, out *BadLayoutError) bool {
	if e, ok := err.(BadLayoutError); ok {
		*out = e
		return true
	}
	return false
}

func TestCompositeFieldFlattening(t *testing.T) {
	r := NewRegistry()
	vecID, err := r.Register(ComponentSpec{
		Kind:   InstanceUnmanaged,
		Name:   "Vec2",
		Policy: Sequential,
		Fields: []FieldDescriptor{
			{Name: "X", Kind: KindF32, Size: 4},
			{Name: "Y", Kind: KindF32, Size: 4},
		},
	})
	if err != nil {
		t.Fatalf("Register Vec2: %v", err)
	}

	transformID, err := r.Register(ComponentSpec{
		Kind:   InstanceUnmanaged,
		Name:   "Transform",
		Policy: Sequential,
		Fields: []FieldDescriptor{
			{Name: "Position", Composite: &vecID},
			{Name: "Velocity", Composite: &vecID, Offset: 8},
		},
	})
	if err != nil {
		t.Fatalf("Register Transform: %v", err)
	}
	desc, _ := r.Descriptor(transformID)
	if len(desc.Fields) != 4 {
		t.Fatalf("expected 4 flattened fields, got %d", len(desc.Fields))
	}
	if desc.Fields[2].Name != "Velocity.X" || desc.Fields[2].Offset != 8 {
		t.Errorf("flattened field = %+v, want Velocity.X at offset 8", desc.Fields[2])
	}
}

func TestRegistrationCycleError(t *testing.T) {
	r := NewRegistry()
	bogus := ComponentTypeId(999)
	_, err := r.Register(ComponentSpec{
		Kind:   InstanceUnmanaged,
		Name:   "cyclic",
		Policy: Sequential,
		Fields: []FieldDescriptor{
			{Name: "self", Composite: &bogus},
		},
	})
	if _, ok := err.(RegistrationCycleError); !ok {
		t.Fatalf("expected RegistrationCycleError, got %v", err)
	}
}
