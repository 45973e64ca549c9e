package silo

import (
	"reflect"
	"sort"
	"sync"
)

// ComponentSpec is the input a caller (or the generic FactoryNewComponent
// helper) hands to Registry.Register. GoType is the identity used for
// idempotent re-registration; it may be nil for components registered only
// through the manual/descriptor path.
type ComponentSpec struct {
	GoType reflect.Type
	Kind   ComponentKind
	Name   string
	Policy LayoutPolicy
	Fields []FieldDescriptor
	// Size/Align are used verbatim instead of computeLayout when Opaque is
	// true — the path FactoryNewComponent[T] uses, treating T as one
	// indivisible blob rather than a field-level descriptor.
	Opaque bool
	Size   uint32
	Align  uint32
}

// Registry assigns stable ComponentTypeIds, computes unmanaged layouts, and
// caches descriptors. Safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	byType      map[reflect.Type]ComponentTypeId
	descriptors []ComponentDescriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]ComponentTypeId)}
}

// Register assigns (or returns the existing) ComponentTypeId for spec.
// Idempotent by spec.GoType identity when GoType is non-nil.
func (r *Registry) Register(spec ComponentSpec) (ComponentTypeId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.GoType != nil {
		if id, ok := r.byType[spec.GoType]; ok {
			return id, nil
		}
	}

	if len(r.descriptors) >= maxComponentTypes {
		return 0, BadArgumentError{Op: "Register", Detail: "component type vocabulary exhausted"}
	}
	id := ComponentTypeId(len(r.descriptors))

	desc := ComponentDescriptor{
		ID:     id,
		Kind:   spec.Kind,
		Name:   spec.Name,
		Policy: spec.Policy,
	}

	switch {
	case spec.Kind == InstanceManaged || spec.Kind == SharedManaged:
		// Managed kinds store a ticket, not bytes, so size stays zero.
	case spec.Kind == SharedUnmanaged:
		desc.Size, desc.Align = 8, 8 // one i64 shared value
	case spec.Opaque:
		desc.Size, desc.Align = spec.Size, spec.Align
	default:
		fields, size, align, err := r.computeLayout(spec.Fields, spec.Policy)
		if err != nil {
			return 0, err
		}
		desc.Fields, desc.Size, desc.Align = fields, size, align
	}

	r.descriptors = append(r.descriptors, desc)
	if spec.GoType != nil {
		r.byType[spec.GoType] = id
	}
	return id, nil
}

// Descriptor returns the descriptor registered for id.
func (r *Registry) Descriptor(id ComponentTypeId) (ComponentDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.descriptors) {
		return ComponentDescriptor{}, false
	}
	return r.descriptors[id], true
}

// Kind returns the kind registered for id.
func (r *Registry) Kind(id ComponentTypeId) (ComponentKind, bool) {
	d, ok := r.Descriptor(id)
	return d.Kind, ok
}

// computeLayout expands composite fields and assigns offsets per policy.
// Caller must hold r.mu.
func (r *Registry) computeLayout(fields []FieldDescriptor, policy LayoutPolicy) ([]FieldDescriptor, uint32, uint32, error) {
	flat, err := r.flatten(fields, 0)
	if err != nil {
		return nil, 0, 0, err
	}

	switch policy {
	case Sequential:
		var offset uint32
		for i := range flat {
			flat[i].Offset = offset
			offset += flat[i].Size
		}
		return flat, offset, 1, nil

	case Padding:
		var offset, maxAlign uint32 = 0, 1
		for i := range flat {
			align := flat[i].Align
			if align == 0 {
				align = flat[i].Size
			}
			if align == 0 {
				align = 1
			}
			offset = alignUp(offset, align)
			flat[i].Offset = offset
			offset += flat[i].Size
			if align > maxAlign {
				maxAlign = align
			}
		}
		return flat, alignUp(offset, maxAlign), maxAlign, nil

	case Explicit:
		sort.Slice(flat, func(i, j int) bool { return flat[i].Offset < flat[j].Offset })
		var extent uint32
		for i, f := range flat {
			if i > 0 {
				prev := flat[i-1]
				if f.Offset < prev.Offset+prev.Size {
					return nil, 0, 0, BadLayoutError{
						TypeName: f.Name,
						Detail:   "overlapping explicit field offsets",
					}
				}
			}
			if f.Offset+f.Size > extent {
				extent = f.Offset + f.Size
			}
		}
		return flat, extent, 1, nil
	}

	return nil, 0, 0, BadArgumentError{Op: "Register", Detail: "unknown layout policy"}
}

// flatten expands composite fields into their component's already-resolved
// flat field list, shifted by base. A composite referencing an
// unregistered type cannot be resolved in topological order and is
// reported as a registration cycle.
func (r *Registry) flatten(fields []FieldDescriptor, base uint32) ([]FieldDescriptor, error) {
	out := make([]FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if f.Composite == nil {
			field := f
			field.Offset += base
			if field.Size == 0 {
				field.Size = primitiveSize(f.Kind)
			}
			out = append(out, field)
			continue
		}
		if int(*f.Composite) >= len(r.descriptors) {
			return nil, RegistrationCycleError{Cycle: []string{f.Name}}
		}
		child := r.descriptors[*f.Composite]
		if child.Kind != InstanceUnmanaged {
			return nil, BadArgumentError{Op: "Register", Detail: "composite field must reference an instance-unmanaged component"}
		}
		for _, cf := range child.Fields {
			shifted := cf
			shifted.Offset += base + f.Offset
			shifted.Name = f.Name + "." + cf.Name
			out = append(out, shifted)
		}
	}
	return out, nil
}

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}
