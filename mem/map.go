package mem

import (
	"cmp"
	"iter"
	"sort"

	"golang.org/x/exp/constraints"
)

// Map is a sorted-slice map whose backing storage comes from an Arena. It
// trades asymptotics for zero per-frame garbage; the engines only ever hold
// a handful of live resources at a time.
type Map[K constraints.Ordered, V any] struct {
	entries []mapEntry[K, V]
}

type mapEntry[K constraints.Ordered, V any] struct {
	key     K
	value   V
	deleted bool
}

func (m *Map[K, V]) find(key K) (*mapEntry[K, V], bool) {
	idx, ok := sort.Find(len(m.entries), func(i int) int {
		return cmp.Compare(key, m.entries[i].key)
	})
	if !ok {
		return nil, false
	}
	return &m.entries[idx], true
}

func (m *Map[K, V]) Insert(a *Arena, key K, value V) {
	idx := sort.Search(len(m.entries), func(i int) bool {
		return key <= m.entries[i].key
	})
	if idx < len(m.entries) && m.entries[idx].key == key {
		e := &m.entries[idx]
		e.value = value
		e.deleted = false
		return
	}
	if len(m.entries) < cap(m.entries) {
		m.entries = m.entries[:len(m.entries)+1]
		copy(m.entries[idx+1:], m.entries[idx:])
	} else {
		grown := NewSlice[[]mapEntry[K, V]](a, len(m.entries)+1, (len(m.entries)+1)*2)
		copy(grown, m.entries[:idx])
		copy(grown[idx+1:], m.entries[idx:])
		m.entries = grown
	}
	m.entries[idx] = mapEntry[K, V]{key: key, value: value}
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	if e, ok := m.find(key); ok && !e.deleted {
		return e.value, true
	}
	var zero V
	return zero, false
}

func (m *Map[K, V]) Delete(key K) bool {
	if e, ok := m.find(key); ok {
		wasDeleted := e.deleted
		e.deleted = true
		return !wasDeleted
	}
	return false
}

func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for i := range m.entries {
			if m.entries[i].deleted {
				continue
			}
			if !yield(m.entries[i].key) {
				return
			}
		}
	}
}

func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.entries {
			if m.entries[i].deleted {
				continue
			}
			if !yield(m.entries[i].key, m.entries[i].value) {
				return
			}
		}
	}
}
