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

// DefaultPageSize is the number of entries bulk-allocated per arena page.
const DefaultPageSize = 10000

// flatPage is one bulk allocation of entries. Entry i of the page owns the
// child slots children[i*fanout : (i+1)*fanout]; links are global entry
// indices, nilNode when absent. Entries are never freed individually, a
// rebuild drops whole pages.
type flatPage[V any] struct {
	children []int32
	values   []V
	plens    []int16
}

func newFlatPage[V any](pageSize, fanout int) flatPage[V] {
	p := flatPage[V]{
		children: make([]int32, pageSize*fanout),
		values:   make([]V, pageSize),
		plens:    make([]int16, pageSize),
	}
	for i := range p.children {
		p.children[i] = nilNode
	}
	for i := range p.plens {
		p.plens[i] = noValue
	}
	return p
}

// Flat is the compiled, immutable counterpart of a PrefixTrie. Build walks
// a finished trie once and lays its nodes out in page-allocated tables, so
// the query walk follows table links instead of chasing individually
// allocated nodes. The representation changes, the query semantics do not.
//
// A built Flat is never written again and may be queried concurrently
// without locking. Build is single-threaded and must not overlap any read.
type Flat[K Key[K], V any] struct {
	bits     int
	fanout   int
	levels   int
	pageSize int

	pages      []flatPage[V]
	usedInPage int
	usedTotal  int
}

// NewFlat returns an empty Flat for the given branching factor. It answers
// no queries until Build succeeds.
func NewFlat[K Key[K], V any](bits int) (*Flat[K, V], error) {
	return NewFlatPaged[K, V](bits, DefaultPageSize)
}

// NewFlatPaged is NewFlat with an explicit arena page size.
func NewFlatPaged[K Key[K], V any](bits, pageSize int) (*Flat[K, V], error) {
	if bits < minBits || bits > maxBits {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrBranchFactor, bits, minBits, maxBits)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("page size %d below 1", pageSize)
	}
	var zero K
	return &Flat[K, V]{
		bits:     bits,
		fanout:   1 << bits,
		levels:   (zero.width() + bits - 1) / bits,
		pageSize: pageSize,
	}, nil
}

// release drops the whole arena. Entries are never freed one by one.
func (f *Flat[K, V]) release() {
	f.pages = nil
	f.usedInPage = 0
	f.usedTotal = 0
}

// alloc claims the next entry slot, appending a fresh page when the current
// one is full, and returns its global index.
func (f *Flat[K, V]) alloc() int32 {
	if len(f.pages) == 0 || f.usedInPage == f.pageSize {
		f.pages = append(f.pages, newFlatPage[V](f.pageSize, f.fanout))
		f.usedInPage = 0
	}
	idx := int32((len(f.pages)-1)*f.pageSize + f.usedInPage)
	f.usedInPage++
	f.usedTotal++
	return idx
}

func (f *Flat[K, V]) setValue(idx int32, value V, plen int16) {
	page := &f.pages[int(idx)/f.pageSize]
	off := int(idx) % f.pageSize
	page.values[off] = value
	page.plens[off] = plen
}

func (f *Flat[K, V]) link(parent int32, sym int, child int32) {
	page := &f.pages[int(parent)/f.pageSize]
	off := int(parent) % f.pageSize
	page.children[off*f.fanout+sym] = child
}

// Build compiles the trie into this Flat. Any pages held from a previous
// build are released first, so Build is re-invocable; two builds from the
// same trie snapshot answer every query identically. An aborted build (via
// the error return) leaves a cleanly releasable partial arena and the Flat
// reports itself unbuilt.
func (f *Flat[K, V]) Build(trie *PrefixTrie[K, V]) error {
	if trie == nil {
		return fmt.Errorf("build from nil trie")
	}
	if trie.bits != f.bits {
		return fmt.Errorf("%w: trie /%d bits, flat /%d bits", ErrGeometryMismatch, trie.bits, f.bits)
	}
	f.release()
	// the root is always materialized so queries have an anchor even when
	// the trie is empty
	f.copyNode(trie, 0)
	return nil
}

// copyNode lays out one trie node and, depth first, its descendants.
// Subtrees carrying neither a value nor descendants are pruned: absence is
// a nil child link, not a wasted entry.
func (f *Flat[K, V]) copyNode(trie *PrefixTrie[K, V], node int32) int32 {
	idx := f.alloc()
	f.setValue(idx, trie.values[node], trie.plens[node])

	for sym := 0; sym < f.fanout; sym++ {
		child := trie.children[int(node)*f.fanout+sym]
		if child == nilNode {
			continue
		}
		if trie.plens[child] == noValue && !f.hasChildren(trie, child) {
			continue
		}
		// pages may have grown while copying the subtree, link afterwards
		f.link(idx, sym, f.copyNode(trie, child))
	}
	return idx
}

func (f *Flat[K, V]) hasChildren(trie *PrefixTrie[K, V], node int32) bool {
	base := int(node) * f.fanout
	for sym := 0; sym < f.fanout; sym++ {
		if trie.children[base+sym] != nilNode {
			return true
		}
	}
	return false
}

// Built reports whether a successful Build happened. Hot paths check it
// once and then rely on Query never failing.
func (f *Flat[K, V]) Built() bool { return f.usedTotal > 0 }

// Query returns the value of the most specific prefix covering key, walking
// the same algorithm as PrefixTrie.Query over table links. Querying a Flat
// that was never built is a precondition violation reported as
// ErrUninitialized, never a silent miss.
func (f *Flat[K, V]) Query(key K) (V, bool, error) {
	var best V
	if !f.Built() {
		return best, false, ErrUninitialized
	}

	cur := int32(0)
	page := &f.pages[0]
	ok := page.plens[0] != noValue
	if ok {
		best = page.values[0]
	}

	for lvl := 0; lvl < f.levels; lvl++ {
		off := int(cur) % f.pageSize
		child := page.children[off*f.fanout+int(key.top(f.bits))]
		if child == nilNode {
			break
		}
		cur = child
		page = &f.pages[int(cur)/f.pageSize]
		off = int(cur) % f.pageSize
		if page.plens[off] != noValue {
			best = page.values[off]
			ok = true
		}
		key = key.shl(f.bits)
	}
	return best, ok, nil
}

// Bits returns the branching factor in address bits per level.
func (f *Flat[K, V]) Bits() int { return f.bits }

// Entries returns the number of entries laid out by the last Build.
func (f *Flat[K, V]) Entries() int { return f.usedTotal }

// Pages returns the number of arena pages held by the last Build.
func (f *Flat[K, V]) Pages() int { return len(f.pages) }
