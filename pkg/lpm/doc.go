// Package lpm implements a longest-prefix-match lookup engine: a mutable
// multibit prefix trie (PrefixTrie), its compiled page-arena counterpart
// (Flat), an aggregation variant returning every covering prefix
// (MultiTrie), and an atomic publication wrapper (Handle).
//
// Keys are 32 or 128 bit addresses in host bit order; textual parsing is the
// caller's concern, see the cidr package. The branching factor, the number
// of address bits consumed per trie level, is chosen at construction time
// between 1 and 8: wider levels mean shallower walks but fatter nodes.
//
// Tries are filled single-threaded in non-decreasing prefix length order and
// compiled once; a built Flat is immutable and serves concurrent readers
// without locking.
package lpm
