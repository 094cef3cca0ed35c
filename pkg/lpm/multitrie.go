/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package lpm

import "fmt"

// MultiTrie is the aggregation variant of PrefixTrie. On top of the winner
// value of every node it keeps a covering set: the values of every inserted
// prefix whose block contains the node. Sets grow monotonically with depth,
// a node's set is always a superset of its ancestors' sets.
//
// The trie shape and the winner-only Query are shared with PrefixTrie; the
// set bookkeeping is a parallel arena keyed by the same node indices.
type MultiTrie[K Key[K], V comparable] struct {
	trie *PrefixTrie[K, V]

	// covering set per node, parallel to the trie arena
	sets []map[V]struct{}
}

// NewMultiTrie returns an empty aggregating trie consuming bits (1 to 8)
// address bits per level.
func NewMultiTrie[K Key[K], V comparable](bits int) (*MultiTrie[K, V], error) {
	t, err := NewPrefixTrie[K, V](bits)
	if err != nil {
		return nil, err
	}
	m := &MultiTrie[K, V]{trie: t}
	m.syncSets(nil)
	return m, nil
}

// syncSets grows the set arena to match the trie arena. Nodes created since
// the last call inherit a copy of the accumulated covering set.
func (m *MultiTrie[K, V]) syncSets(inherited map[V]struct{}) {
	for len(m.sets) < len(m.trie.values) {
		s := make(map[V]struct{}, len(inherited))
		for v := range inherited {
			s[v] = struct{}{}
		}
		m.sets = append(m.sets, s)
	}
}

// step descends to (or creates) the child for sym, keeping the aggregation
// invariant: a fresh node inherits everything accumulated along the path,
// a pre-existing node contributes its own set to the accumulation.
func (m *MultiTrie[K, V]) step(node int32, sym uint8, agg map[V]struct{}) int32 {
	child := m.trie.getOrCreate(node, sym)
	if int(child) < len(m.sets) {
		for v := range m.sets[child] {
			agg[v] = struct{}{}
		}
	} else {
		m.syncSets(agg)
	}
	return child
}

// Insert registers the prefix (key, length) with the given value, with the
// same ordering, validation and duplicate rules as PrefixTrie.Insert, and
// threads the accumulated covering set down the insertion path.
func (m *MultiTrie[K, V]) Insert(key K, length int, value V) error {
	t := m.trie
	if err := t.checkInsert(key, length); err != nil {
		return err
	}
	t.lastLen = length

	agg := make(map[V]struct{}, len(m.sets[0]))
	for v := range m.sets[0] {
		agg[v] = struct{}{}
	}

	cur := int32(0)
	left := length
	for ; left >= t.bits; left -= t.bits {
		cur = m.step(cur, key.top(t.bits), agg)
		key = key.shl(t.bits)
	}

	agg[value] = struct{}{}

	dup := false
	settle := func(node int32) {
		dup = dup || t.plens[node] == int16(length)
		t.values[node] = value
		t.plens[node] = int16(length)
		for v := range agg {
			m.sets[node][v] = struct{}{}
		}
	}

	if left > 0 {
		rem := key.top(t.bits)
		mask := splitMask(t.bits, left)
		for sym := 0; sym < t.fanout; sym++ {
			if uint8(sym)&mask != rem {
				continue
			}
			settle(m.step(cur, uint8(sym), agg))
		}
	} else {
		settle(cur)
	}

	if dup {
		return fmt.Errorf("%w: /%d, keeping last value", ErrDuplicateInsertion, length)
	}
	return nil
}

// Query returns the winner-only longest prefix match, exactly as
// PrefixTrie.Query.
func (m *MultiTrie[K, V]) Query(key K) (V, bool) {
	return m.trie.Query(key)
}

// AggregateQuery returns the covering set held at the deepest node reachable
// for key: the value of every inserted prefix whose block contains key. The
// result is unordered and is a live reference into the trie, callers must
// treat it as read-only and copy it if they need ownership.
func (m *MultiTrie[K, V]) AggregateQuery(key K) map[V]struct{} {
	t := m.trie
	cur := int32(0)
	for lvl := 0; lvl < t.levels; lvl++ {
		child := t.children[int(cur)*t.fanout+int(key.top(t.bits))]
		if child == nilNode {
			break
		}
		cur = child
		key = key.shl(t.bits)
	}
	return m.sets[cur]
}

// Bits returns the branching factor in address bits per level.
func (m *MultiTrie[K, V]) Bits() int { return m.trie.bits }

// Nodes returns the number of allocated trie nodes, the root included.
func (m *MultiTrie[K, V]) Nodes() int { return m.trie.Nodes() }
