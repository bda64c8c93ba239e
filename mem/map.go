// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package mem

import (
	"cmp"
	"iter"
	"slices"

	"golang.org/x/exp/constraints"
)

// BinaryTreeMap is a map backed by a sorted slice. It is meant for the small
// number of entries a single recording deals with, where it beats a hash map
// and iterates in key order.
type BinaryTreeMap[K constraints.Ordered, V any] struct {
	entries []mapEntry[K, V]
}

type mapEntry[K constraints.Ordered, V any] struct {
	key   K
	value V
}

func (m *BinaryTreeMap[K, V]) search(key K) (int, bool) {
	return slices.BinarySearchFunc(m.entries, key, func(e mapEntry[K, V], k K) int {
		return cmp.Compare(e.key, k)
	})
}

func (m *BinaryTreeMap[K, V]) Insert(a *Arena, key K, value V) {
	idx, ok := m.search(key)
	if ok {
		m.entries[idx].value = value
		return
	}
	if len(m.entries) == cap(m.entries) {
		s := NewSlice[[]mapEntry[K, V]](a, len(m.entries), max(4, 2*len(m.entries)))
		copy(s, m.entries)
		m.entries = s
	}
	m.entries = slices.Insert(m.entries, idx, mapEntry[K, V]{key, value})
}

func (m *BinaryTreeMap[K, V]) Get(key K) (V, bool) {
	if idx, ok := m.search(key); ok {
		return m.entries[idx].value, true
	}
	return *new(V), false
}

func (m *BinaryTreeMap[K, V]) Delete(key K) bool {
	idx, ok := m.search(key)
	if !ok {
		return false
	}
	m.entries = slices.Delete(m.entries, idx, idx+1)
	return true
}

func (m *BinaryTreeMap[K, V]) Len() int { return len(m.entries) }

func (m *BinaryTreeMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range m.entries {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

func (m *BinaryTreeMap[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, e := range m.entries {
			if !yield(e.key) {
				return
			}
		}
	}
}
