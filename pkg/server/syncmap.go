package server

import "sync"

// SyncMap is a type-safe sync.Map.
type SyncMap[K comparable, V any] struct {
	mapping sync.Map
}

func cast[V any](v any, ok bool) (V, bool) {
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (m *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	return cast[V](m.mapping.Load(key))
}

func (m *SyncMap[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	return cast[V](m.mapping.LoadAndDelete(key))
}

func (m *SyncMap[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	return cast[V](m.mapping.Swap(key, value))
}
