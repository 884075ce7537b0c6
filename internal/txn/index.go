package txn

import (
	"sort"
	"sync"

	"github.com/jmcarbo/reldb/internal/heap"
)

// SecondaryIndex is the interface the executor's Update operator calls
// into to keep non-primary indexes consistent (spec.md §6). The core
// engine never implements a real B-tree or hash index itself -- that
// is explicitly out of scope -- so this package supplies the minimal
// in-memory ordered implementation needed to exercise the interface.
type SecondaryIndex interface {
	InsertEntry(key []byte, rid heap.Rid) error
	DeleteEntry(key []byte, rid heap.Rid) error
	Lookup(key []byte) []heap.Rid
}

// MemIndex is an in-memory multimap from key bytes to Rids, ordered by
// key for range-style lookups.
type MemIndex struct {
	mu      sync.RWMutex
	entries map[string][]heap.Rid
	keys    []string
}

// NewMemIndex constructs an empty MemIndex.
func NewMemIndex() *MemIndex {
	return &MemIndex{entries: make(map[string][]heap.Rid)}
}

// InsertEntry adds one (key, rid) pair to the index.
func (m *MemIndex) InsertEntry(key []byte, rid heap.Rid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	if _, ok := m.entries[k]; !ok {
		i := sort.SearchStrings(m.keys, k)
		m.keys = append(m.keys, "")
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = k
	}
	m.entries[k] = append(m.entries[k], rid)
	return nil
}

// DeleteEntry removes one (key, rid) pair from the index.
func (m *MemIndex) DeleteEntry(key []byte, rid heap.Rid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	rids := m.entries[k]
	for i, r := range rids {
		if r == rid {
			m.entries[k] = append(rids[:i], rids[i+1:]...)
			break
		}
	}
	if len(m.entries[k]) == 0 {
		delete(m.entries, k)
		i := sort.SearchStrings(m.keys, k)
		if i < len(m.keys) && m.keys[i] == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
		}
	}
	return nil
}

// Lookup returns every Rid currently indexed under key.
func (m *MemIndex) Lookup(key []byte) []heap.Rid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]heap.Rid, len(m.entries[string(key)]))
	copy(out, m.entries[string(key)])
	return out
}
