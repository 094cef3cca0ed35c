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

import (
	"encoding/binary"
	"math/rand"
	"net/netip"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// branch factors exercised by the generic tests
var testBits = []int{1, 3, 4, 6, 8}

func mustKey32(t *testing.T, addr string) Key32 {
	t.Helper()
	b := netip.MustParseAddr(addr).As4()
	return Key32(binary.BigEndian.Uint32(b[:]))
}

type pfx4 struct {
	cidr  string
	value int
}

// insertAll parses "a.b.c.d/len" entries and inserts them in the given order.
func insertAll(t *testing.T, trie interface {
	Insert(Key32, int, int) error
}, prefixes []pfx4) {
	t.Helper()
	for _, p := range prefixes {
		pp := netip.MustParsePrefix(p.cidr)
		b := pp.Addr().As4()
		err := trie.Insert(Key32(binary.BigEndian.Uint32(b[:])), pp.Bits(), p.value)
		require.NoError(t, err, p.cidr)
	}
}

// dataset and expectations shared between the trie and flat tests, prefix
// lengths already non-decreasing
var lpmDataset = []pfx4{
	{"255.0.0.0/8", 0},
	{"255.255.0.0/16", 1},
	{"10.255.0.0/16", 2},
	{"95.175.112.0/21", 4},
	{"95.175.144.0/21", 5},
	{"170.85.200.0/22", 6},
	{"170.85.202.0/24", 7},
	{"10.255.0.3/32", 3},
}

var lpmExpectations = []struct {
	addr  string
	value int // -1 when no prefix covers the address
}{
	{"10.255.0.0", 2},
	{"10.255.1.0", 2},
	{"10.255.255.255", 2},
	{"10.255.0.3", 3},

	{"255.0.0.0", 0},
	{"255.1.0.0", 0},
	{"255.255.0.0", 1},
	{"255.255.255.0", 1},
	{"255.255.123.42", 1},

	{"254.0.0.0", -1},
	{"0.0.0.0", -1},

	{"170.85.200.0", 6},
	{"170.85.200.1", 6},
	{"170.85.203.255", 6},
	{"170.85.202.0", 7},
	{"170.85.202.5", 7},
	{"170.85.202.255", 7},
	{"170.85.204.1", -1},

	{"95.175.111.255", -1},
	{"95.175.112.0", 4},
	{"95.175.119.255", 4},
	{"95.175.120.0", -1},
	{"95.175.144.1", 5},
	{"95.175.151.254", 5},
}

func checkExpectations(t *testing.T, query func(Key32) (int, bool)) {
	t.Helper()
	for _, tc := range lpmExpectations {
		got, ok := query(mustKey32(t, tc.addr))
		if tc.value == -1 {
			assert.False(t, ok, tc.addr)
		} else {
			require.True(t, ok, tc.addr)
			assert.Equal(t, tc.value, got, tc.addr)
		}
	}
}

func TestPrefixTrie_LongestMatch(t *testing.T) {
	for _, bits := range testBits {
		trie, err := NewPrefixTrie[Key32, int](bits)
		require.NoError(t, err)
		insertAll(t, trie, lpmDataset)
		checkExpectations(t, trie.Query)
	}
}

func TestPrefixTrie_PartialSplit(t *testing.T) {
	// /22 and /24 both split every level for most branch factors
	for _, bits := range testBits {
		trie, err := NewPrefixTrie[Key32, int](bits)
		require.NoError(t, err)
		insertAll(t, trie, []pfx4{
			{"170.85.200.0/22", 6},
			{"170.85.202.0/24", 7},
		})

		v, ok := trie.Query(mustKey32(t, "170.85.200.1"))
		require.True(t, ok)
		require.Equal(t, 6, v)

		v, ok = trie.Query(mustKey32(t, "170.85.202.5"))
		require.True(t, ok)
		require.Equal(t, 7, v)

		// 204 lies outside the /22 block 200..203
		_, ok = trie.Query(mustKey32(t, "170.85.204.1"))
		require.False(t, ok)
	}
}

func TestPrefixTrie_OrderEnforcement(t *testing.T) {
	trie, err := NewPrefixTrie[Key32, int](4)
	require.NoError(t, err)
	insertAll(t, trie, []pfx4{{"123.250.0.0/16", 300}, {"123.250.85.17/32", 400}})

	err = trie.Insert(mustKey32(t, "10.0.0.0"), 8, 99)
	require.ErrorIs(t, err, ErrOutOfOrderInsertion)

	// prior matches are intact
	v, ok := trie.Query(mustKey32(t, "123.250.85.17"))
	require.True(t, ok)
	require.Equal(t, 400, v)
	v, ok = trie.Query(mustKey32(t, "123.250.85.18"))
	require.True(t, ok)
	require.Equal(t, 300, v)
	_, ok = trie.Query(mustKey32(t, "10.1.2.3"))
	require.False(t, ok)
}

func TestPrefixTrie_InvalidPrefix(t *testing.T) {
	trie, err := NewPrefixTrie[Key32, int](4)
	require.NoError(t, err)

	err = trie.Insert(Key32(0), -1, 1)
	require.ErrorIs(t, err, ErrInvalidPrefix)
	err = trie.Insert(Key32(0), 33, 1)
	require.ErrorIs(t, err, ErrInvalidPrefix)

	// host bits below the prefix length
	err = trie.Insert(mustKey32(t, "10.0.0.1"), 8, 1)
	require.ErrorIs(t, err, ErrInvalidPrefix)

	// nothing was inserted
	require.Equal(t, 1, trie.Nodes())
	_, ok := trie.Query(mustKey32(t, "10.0.0.1"))
	require.False(t, ok)
}

func TestPrefixTrie_DuplicateLastWriterWins(t *testing.T) {
	for _, bits := range testBits {
		trie, err := NewPrefixTrie[Key32, int](bits)
		require.NoError(t, err)

		require.NoError(t, trie.Insert(mustKey32(t, "192.168.0.0"), 17, 1))
		err = trie.Insert(mustKey32(t, "192.168.0.0"), 17, 2)
		require.ErrorIs(t, err, ErrDuplicateInsertion)

		v, ok := trie.Query(mustKey32(t, "192.168.100.1"))
		require.True(t, ok)
		require.Equal(t, 2, v)
	}
}

func TestPrefixTrie_DefaultRoute(t *testing.T) {
	trie, err := NewPrefixTrie[Key32, string](8)
	require.NoError(t, err)

	require.NoError(t, trie.Insert(Key32(0), 0, "default"))
	require.NoError(t, trie.Insert(mustKey32(t, "10.0.0.0"), 8, "ten"))

	v, ok := trie.Query(mustKey32(t, "10.1.2.3"))
	require.True(t, ok)
	require.Equal(t, "ten", v)

	v, ok = trie.Query(mustKey32(t, "8.8.8.8"))
	require.True(t, ok)
	require.Equal(t, "default", v)
}

func TestPrefixTrie_Boundaries(t *testing.T) {
	for _, bits := range testBits {
		trie, err := NewPrefixTrie[Key32, int](bits)
		require.NoError(t, err)
		insertAll(t, trie, []pfx4{
			{"0.0.0.0/8", 1},
			{"255.255.255.0/24", 2},
		})

		// all-zero and all-one keys
		v, ok := trie.Query(Key32(0))
		require.True(t, ok)
		require.Equal(t, 1, v)
		v, ok = trie.Query(Key32(0xFFFFFFFF))
		require.True(t, ok)
		require.Equal(t, 2, v)

		// first and last address of each block
		v, ok = trie.Query(mustKey32(t, "0.255.255.255"))
		require.True(t, ok)
		require.Equal(t, 1, v)
		v, ok = trie.Query(mustKey32(t, "255.255.255.0"))
		require.True(t, ok)
		require.Equal(t, 2, v)
		_, ok = trie.Query(mustKey32(t, "1.0.0.0"))
		require.False(t, ok)
		_, ok = trie.Query(mustKey32(t, "255.255.254.255"))
		require.False(t, ok)
	}
}

func TestNewPrefixTrie_BranchFactor(t *testing.T) {
	_, err := NewPrefixTrie[Key32, int](0)
	require.ErrorIs(t, err, ErrBranchFactor)
	_, err = NewPrefixTrie[Key32, int](9)
	require.ErrorIs(t, err, ErrBranchFactor)
	_, err = NewPrefixTrie[Key128, int](8)
	require.NoError(t, err)
}

// ---- randomized brute force cross-checks ---------------------------------

type refPrefix4 struct {
	key   uint32
	len   int
	value int
}

func refBest4(prefixes []refPrefix4, addr uint32) (int, bool) {
	best, ok := 0, false
	bestLen := -1
	for _, p := range prefixes {
		if p.len != 0 && addr>>(32-p.len) != p.key>>(32-p.len) {
			continue
		}
		// later insertions win ties, they are at least as long
		if p.len >= bestLen {
			best, bestLen, ok = p.value, p.len, true
		}
	}
	return best, ok
}

func genPrefixes4(rnd *rand.Rand, n int) []refPrefix4 {
	prefixes := make([]refPrefix4, 0, n)
	for i := 0; i < n; i++ {
		length := rnd.Intn(33)
		key := rnd.Uint32()
		if length < 32 {
			key &= ^uint32(0) << (32 - length)
		}
		if length == 0 {
			key = 0
		}
		prefixes = append(prefixes, refPrefix4{key: key, len: length, value: i})
	}
	sort.SliceStable(prefixes, func(i, j int) bool { return prefixes[i].len < prefixes[j].len })
	return prefixes
}

func TestPrefixTrie_BruteForce32(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, bits := range testBits {
		trie, err := NewPrefixTrie[Key32, int](bits)
		require.NoError(t, err)

		prefixes := genPrefixes4(rnd, 300)
		for _, p := range prefixes {
			err := trie.Insert(Key32(p.key), p.len, p.value)
			if err != nil {
				require.ErrorIs(t, err, ErrDuplicateInsertion)
			}
		}

		probe := func(addr uint32) {
			want, wantOK := refBest4(prefixes, addr)
			got, ok := trie.Query(Key32(addr))
			require.Equal(t, wantOK, ok, "bits=%d addr=%08x", bits, addr)
			if ok {
				require.Equal(t, want, got, "bits=%d addr=%08x", bits, addr)
			}
		}

		for _, p := range prefixes {
			probe(p.key) // first address of the block
			if p.len < 32 {
				probe(p.key | ^(^uint32(0) << (32 - p.len))) // last address
			}
		}
		for i := 0; i < 2000; i++ {
			probe(rnd.Uint32())
		}
	}
}

type refPrefix6 struct {
	key   Key128
	len   int
	value int
}

func covers6(key Key128, length int, addr Key128) bool {
	switch {
	case length == 0:
		return true
	case length <= 64:
		return key.Hi>>(64-length) == addr.Hi>>(64-length)
	default:
		return key.Hi == addr.Hi && key.Lo>>(128-length) == addr.Lo>>(128-length)
	}
}

func genPrefixes6(rnd *rand.Rand, n int) []refPrefix6 {
	prefixes := make([]refPrefix6, 0, n)
	for i := 0; i < n; i++ {
		length := rnd.Intn(129)
		key := Key128{Hi: rnd.Uint64(), Lo: rnd.Uint64()}
		switch {
		case length == 0:
			key = Key128{}
		case length <= 64:
			key.Hi &= ^uint64(0) << (64 - length)
			key.Lo = 0
		case length < 128:
			key.Lo &= ^uint64(0) << (128 - length)
		}
		prefixes = append(prefixes, refPrefix6{key: key, len: length, value: i})
	}
	sort.SliceStable(prefixes, func(i, j int) bool { return prefixes[i].len < prefixes[j].len })
	return prefixes
}

func TestPrefixTrie_BruteForce128(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for _, bits := range testBits {
		trie, err := NewPrefixTrie[Key128, int](bits)
		require.NoError(t, err)

		prefixes := genPrefixes6(rnd, 200)
		for _, p := range prefixes {
			err := trie.Insert(p.key, p.len, p.value)
			if err != nil {
				require.ErrorIs(t, err, ErrDuplicateInsertion)
			}
		}

		probe := func(addr Key128) {
			wantLen, want, wantOK := -1, 0, false
			for _, p := range prefixes {
				if covers6(p.key, p.len, addr) && p.len >= wantLen {
					want, wantLen, wantOK = p.value, p.len, true
				}
			}
			got, ok := trie.Query(addr)
			require.Equal(t, wantOK, ok)
			if ok {
				require.Equal(t, want, got)
			}
		}

		for _, p := range prefixes {
			probe(p.key)
		}
		for i := 0; i < 1000; i++ {
			probe(Key128{Hi: rnd.Uint64(), Lo: rnd.Uint64()})
		}
	}
}
