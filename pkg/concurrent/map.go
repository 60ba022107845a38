package concurrent

import (
	"iter"
	"sync"
	"sync/atomic"
)

// Map is a typed sync.Map that also tracks its size.
type Map[K comparable, V any] struct {
	size atomic.Int64
	m    sync.Map
}

func (m *Map[K, V]) Len() int64 {
	return m.size.Load()
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Store sets key to value and reports whether it replaced an entry.
func (m *Map[K, V]) Store(key K, value V) (replaced bool) {
	if _, loaded := m.m.Swap(key, value); loaded {
		return true
	}
	m.size.Add(1)
	return false
}

// LoadAndDelete removes key and returns the value it held.
func (m *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	v, loaded := m.m.LoadAndDelete(key)
	if !loaded {
		var zero V
		return zero, false
	}
	m.size.Add(-1)
	return v.(V), true
}

func (m *Map[K, V]) Delete(key K) {
	m.LoadAndDelete(key)
}

// All iterates the entries. Like sync.Map.Range it is not a consistent
// snapshot under concurrent writes.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.m.Range(func(k, v any) bool {
			return yield(k.(K), v.(V))
		})
	}
}
