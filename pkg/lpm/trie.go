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

const (
	minBits = 1
	maxBits = 8

	// nilNode marks an absent child link in the arenas.
	nilNode int32 = -1

	// noValue marks a node that no prefix terminates on.
	noValue int16 = -1
)

// PrefixTrie is the mutable, build-time multiway trie. Each level consumes
// `bits` address bits, so a node fans out to 1<<bits children. Nodes live in
// a growable arena and are addressed by index; releasing the whole trie is
// dropping the arena, there is no per-node teardown.
//
// Construction is single-threaded: no Insert may run concurrently with any
// other call. A finished trie answers Query from any number of goroutines.
type PrefixTrie[K Key[K], V any] struct {
	bits   int
	fanout int
	wdt    int
	levels int

	// node arenas, parallel by node index; node i owns the child slots
	// children[i*fanout : (i+1)*fanout]. Node 0 is the root.
	children []int32
	values   []V
	plens    []int16 // prefix length that wrote values[i], noValue if none

	// insertion order cursor, prefix lengths never decrease
	lastLen int
}

// NewPrefixTrie returns an empty trie consuming bits (1 to 8) address bits
// per level. The branching factor is fixed for the trie's lifetime since the
// node layout depends on it.
func NewPrefixTrie[K Key[K], V any](bits int) (*PrefixTrie[K, V], error) {
	if bits < minBits || bits > maxBits {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrBranchFactor, bits, minBits, maxBits)
	}
	var zero K
	t := &PrefixTrie[K, V]{
		bits:   bits,
		fanout: 1 << bits,
		wdt:    zero.width(),
		levels: (zero.width() + bits - 1) / bits,
	}
	t.newNode() // root
	return t, nil
}

// newNode allocates a node in the arena and returns its index.
func (t *PrefixTrie[K, V]) newNode() int32 {
	idx := int32(len(t.values))
	for i := 0; i < t.fanout; i++ {
		t.children = append(t.children, nilNode)
	}
	var zero V
	t.values = append(t.values, zero)
	t.plens = append(t.plens, noValue)
	return idx
}

func (t *PrefixTrie[K, V]) getOrCreate(node int32, sym uint8) int32 {
	slot := int(node)*t.fanout + int(sym)
	if t.children[slot] == nilNode {
		t.children[slot] = t.newNode()
	}
	return t.children[slot]
}

// checkInsert validates an insertion without mutating anything.
func (t *PrefixTrie[K, V]) checkInsert(key K, length int) error {
	if length < 0 || length > t.wdt {
		return fmt.Errorf("%w: length %d not in [0, %d]", ErrInvalidPrefix, length, t.wdt)
	}
	if !key.shl(length).isZero() {
		return fmt.Errorf("%w: key has host bits set below /%d", ErrInvalidPrefix, length)
	}
	if length < t.lastLen {
		return fmt.Errorf("%w: /%d inserted after /%d", ErrOutOfOrderInsertion, length, t.lastLen)
	}
	return nil
}

// splitMask returns the symbol mask selecting the rem most significant bits
// of a symbol, e.g. rem=2 with bits=3 gives 0b110.
func splitMask(bits, rem int) uint8 {
	return uint8(((1 << rem) - 1) << (bits - rem))
}

// Insert registers the prefix (key, length) with the given value. Prefixes
// must arrive in non-decreasing length order. A length that is not a
// multiple of the branching factor splits the final level: the value is
// written on every 2^(bits-rem) sibling slot consistent with the remaining
// rem bits.
//
// Re-inserting an exact (key, length) pair overwrites the previous value,
// last writer wins, and reports ErrDuplicateInsertion; the trie itself stays
// consistent. All other errors leave the trie unmodified.
func (t *PrefixTrie[K, V]) Insert(key K, length int, value V) error {
	if err := t.checkInsert(key, length); err != nil {
		return err
	}
	t.lastLen = length

	cur := int32(0)
	left := length
	for ; left >= t.bits; left -= t.bits {
		cur = t.getOrCreate(cur, key.top(t.bits))
		key = key.shl(t.bits)
	}

	dup := false
	if left > 0 {
		// the prefix length splits the level: materialize every sibling
		// slot whose top `left` bits match the remaining prefix bits
		rem := key.top(t.bits)
		mask := splitMask(t.bits, left)
		for sym := 0; sym < t.fanout; sym++ {
			if uint8(sym)&mask != rem {
				continue
			}
			node := t.getOrCreate(cur, uint8(sym))
			dup = dup || t.plens[node] == int16(length)
			t.values[node] = value
			t.plens[node] = int16(length)
		}
	} else {
		dup = t.plens[cur] == int16(length)
		t.values[cur] = value
		t.plens[cur] = int16(length)
	}

	if dup {
		return fmt.Errorf("%w: /%d, keeping last value", ErrDuplicateInsertion, length)
	}
	return nil
}

// Query walks the trie level by level and returns the value of the most
// specific prefix covering key, or ok=false when no registered prefix does.
// The walk never stops on a match, only when it structurally cannot
// continue, so a deeper match always wins over a shallower one.
func (t *PrefixTrie[K, V]) Query(key K) (V, bool) {
	cur := int32(0)
	best := t.values[0]
	ok := t.plens[0] != noValue

	for lvl := 0; lvl < t.levels; lvl++ {
		child := t.children[int(cur)*t.fanout+int(key.top(t.bits))]
		if child == nilNode {
			break
		}
		cur = child
		if t.plens[cur] != noValue {
			best = t.values[cur]
			ok = true
		}
		key = key.shl(t.bits)
	}
	return best, ok
}

// Bits returns the branching factor in address bits per level.
func (t *PrefixTrie[K, V]) Bits() int { return t.bits }

// Width returns the address width in bits.
func (t *PrefixTrie[K, V]) Width() int { return t.wdt }

// Nodes returns the number of allocated trie nodes, the root included.
func (t *PrefixTrie[K, V]) Nodes() int { return len(t.values) }
