package silo

import "fmt"

// unsetManagedShared and sentinelUnmanagedShared are the "no value at this
// position" markers for SharedValueKey slots.
const unsetManagedShared int32 = -1

var sentinelUnmanagedShared = int64(-1) << 63 // minimum i64

// SharedValueKey identifies a chunk group within an archetype: one managed
// index (into the SharedValueStore) or one i64 value per shared component
// the archetype declares, in the archetype's shared-partition order.
//
// SharedValueKey is a value type so it can be used directly as a Go map
// key: two keys are equal iff both arrays are element-wise equal.
type SharedValueKey struct {
	managed   [8]int32
	unmanaged [8]int64
	nManaged  int
	nUnmgd    int
}

// NewSharedValueKey builds a key from the given slot values. Panics (via
// bad-argument) if more than 8 shared components of either kind are
// supplied — a generous static bound kept for value-type map-key
// comparability; real archetypes rarely shared-partition more than a
// handful of types.
func NewSharedValueKey(managed []int32, unmanaged []int64) SharedValueKey {
	if len(managed) > 8 || len(unmanaged) > 8 {
		abort(BadArgumentError{Op: "NewSharedValueKey", Detail: "too many shared slots"})
	}
	var k SharedValueKey
	k.nManaged, k.nUnmgd = len(managed), len(unmanaged)
	for i, v := range managed {
		k.managed[i] = v
	}
	for i := range unmanaged {
		k.unmanaged[i] = unmanaged[i]
	}
	for i := len(managed); i < 8; i++ {
		k.managed[i] = unsetManagedShared
	}
	for i := len(unmanaged); i < 8; i++ {
		k.unmanaged[i] = sentinelUnmanagedShared
	}
	return k
}

// ManagedAt returns the managed shared-store index at position i, or -1 if
// unset.
func (k SharedValueKey) ManagedAt(i int) int32 { return k.managed[i] }

// UnmanagedAt returns the unmanaged i64 shared value at position i.
func (k SharedValueKey) UnmanagedAt(i int) int64 { return k.unmanaged[i] }

// NManaged and NUnmanaged report the lengths the key was built with.
func (k SharedValueKey) NManaged() int   { return k.nManaged }
func (k SharedValueKey) NUnmanaged() int { return k.nUnmgd }

func (k SharedValueKey) String() string {
	return fmt.Sprintf("SharedValueKey{managed=%v[:%d] unmanaged=%v[:%d]}", k.managed, k.nManaged, k.unmanaged, k.nUnmgd)
}
