package nettle

import "sync"

// AttributeKey identifies a typed slot in an AttributeMap. Keys are
// compared by identity (the pointer to the key itself), not by name; name
// is carried only for diagnostics.
type AttributeKey[T any] struct {
	name string
}

// NewAttributeKey creates a new, distinct attribute key. Two keys created
// with the same name are still distinct.
func NewAttributeKey[T any](name string) *AttributeKey[T] {
	return &AttributeKey[T]{name: name}
}

func (k *AttributeKey[T]) String() string {
	if k == nil {
		return "<nil>"
	}
	return k.name
}

// AttributeMap is the concurrent, per-channel key/value store named in §5
// and §6 ("the attribute map is concurrent; attribute values are whatever
// the user stores"). Grounded on sync.Map directly, matching the teacher's
// preference for stdlib concurrency primitives over a bespoke map type.
type AttributeMap struct {
	m sync.Map
}

// Get returns the value stored for key, or the zero value and false if
// absent.
func Get[T any](m *AttributeMap, key *AttributeKey[T]) (T, bool) {
	var zero T
	v, ok := m.m.Load(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set stores val for key.
func Set[T any](m *AttributeMap, key *AttributeKey[T], val T) {
	m.m.Store(key, val)
}

// GetOrSet atomically returns the existing value for key, or stores and
// returns val if absent.
func GetOrSet[T any](m *AttributeMap, key *AttributeKey[T], val T) T {
	actual, _ := m.m.LoadOrStore(key, val)
	return actual.(T)
}

// Remove deletes the value stored for key, if any.
func Remove[T any](m *AttributeMap, key *AttributeKey[T]) {
	m.m.Delete(key)
}
