package lpm

import (
	"sync"
	"sync/atomic"
)

// Handle publishes a Flat to concurrent readers. Readers Load the current
// table lock-free and keep their reference for as long as they need it; on
// a data refresh a writer builds a brand new trie and Flat off to the side
// and swaps the published pointer. The previous table's pages are reclaimed
// once the last reader drops its reference.
//
// Writers are serialized by a mutex, readers never block.
type Handle[K Key[K], V any] struct {
	ptr atomic.Pointer[Flat[K, V]]
	mu  sync.Mutex
}

// Load returns the currently published Flat, or nil before the first
// Publish or Rebuild.
func (h *Handle[K, V]) Load() *Flat[K, V] {
	return h.ptr.Load()
}

// Publish atomically swaps the published Flat.
func (h *Handle[K, V]) Publish(f *Flat[K, V]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ptr.Store(f)
}

// Rebuild constructs a fresh trie, lets fill populate it, compiles it into
// a new Flat and publishes the result. On any error the previously
// published table stays in place and keeps serving readers.
func (h *Handle[K, V]) Rebuild(bits int, fill func(*PrefixTrie[K, V]) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	trie, err := NewPrefixTrie[K, V](bits)
	if err != nil {
		return err
	}
	if err := fill(trie); err != nil {
		return err
	}
	flat, err := NewFlat[K, V](bits)
	if err != nil {
		return err
	}
	if err := flat.Build(trie); err != nil {
		return err
	}
	h.ptr.Store(flat)
	return nil
}
