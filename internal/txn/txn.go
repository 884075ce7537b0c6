// Package txn supplies the transaction, lock-manager, and secondary
// index collaborators that spec.md §6 treats as external interfaces:
// the core storage and executor components call into them but never
// implement them. This package ships minimal, concrete
// implementations so the rest of the module is runnable end to end.
//
// Grounded on SimonWaldherr-tinySQL's internal/storage/concurrency.go
// for the shared/exclusive lock-table shape, and on
// internal/storage/pager/catalog.go's TxID for the id/timestamp
// pairing; transaction identifiers use google/uuid rather than
// tinySQL's sequential counter, per SPEC_FULL.md §1b.
package txn

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmcarbo/reldb/internal/errs"
)

// Txn is a running transaction: an opaque id plus the timestamp used
// for snapshot/visibility decisions upstream (spec.md §6 "GetStartTs").
type Txn struct {
	id      uuid.UUID
	startTs int64
}

// Begin starts a new transaction stamped with the current time.
func Begin() *Txn {
	return &Txn{id: uuid.New(), startTs: time.Now().UnixNano()}
}

// ID returns the transaction's unique identifier.
func (t *Txn) ID() string { return t.id.String() }

// GetStartTs returns the transaction's start timestamp.
func (t *Txn) GetStartTs() int64 { return t.startTs }

type lockMode int

const (
	shared lockMode = iota
	exclusive
)

type lockEntry struct {
	mode    lockMode
	holders map[string]bool
}

// LockManager grants shared/exclusive locks over record Rids and
// exclusive locks over whole tables, aborting a waiter that would
// otherwise block past a fixed number of probe attempts rather than
// deadlock-detecting via a wait-for graph (spec.md §6, "lock
// manager" as an opaque collaborator -- this is the simplest
// interface satisfying it).
type LockManager struct {
	mu          sync.Mutex
	locks       map[string]*lockEntry
	probeHops   int
}

// NewLockManager constructs a LockManager. probeHops bounds how many
// times AcquireShared/AcquireExclusive will spin waiting for a
// conflicting lock to clear before raising TransactionAborted.
func NewLockManager(probeHops int) *LockManager {
	if probeHops <= 0 {
		probeHops = 100
	}
	return &LockManager{locks: make(map[string]*lockEntry), probeHops: probeHops}
}

func (lm *LockManager) tryAcquire(key, holder string, mode lockMode) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	e, ok := lm.locks[key]
	if !ok {
		lm.locks[key] = &lockEntry{mode: mode, holders: map[string]bool{holder: true}}
		return true
	}
	if e.holders[holder] {
		if mode == shared || e.mode == exclusive {
			return true
		}
	}
	if mode == shared && e.mode == shared {
		e.holders[holder] = true
		return true
	}
	if len(e.holders) == 0 {
		e.mode = mode
		e.holders[holder] = true
		return true
	}
	return false
}

func (lm *LockManager) acquire(key, holder string, mode lockMode) error {
	for attempt := 0; attempt < lm.probeHops; attempt++ {
		if lm.tryAcquire(key, holder, mode) {
			return nil
		}
		time.Sleep(time.Microsecond)
	}
	return errs.Newf(errs.TransactionAborted, "lock wait exceeded on %s", key)
}

// AcquireShared grants holder a shared lock on key.
func (lm *LockManager) AcquireShared(holder, key string) error {
	return lm.acquire(key, holder, shared)
}

// AcquireExclusive grants holder an exclusive lock on key.
func (lm *LockManager) AcquireExclusive(holder, key string) error {
	return lm.acquire(key, holder, exclusive)
}

// Release drops every lock holder currently holds on key.
func (lm *LockManager) Release(holder, key string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	e, ok := lm.locks[key]
	if !ok {
		return
	}
	delete(e.holders, holder)
	if len(e.holders) == 0 {
		delete(lm.locks, key)
	}
}

// ReleaseAll drops every lock holder currently holds, across all keys
// (called when a transaction commits or aborts).
func (lm *LockManager) ReleaseAll(holder string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for key, e := range lm.locks {
		delete(e.holders, holder)
		if len(e.holders) == 0 {
			delete(lm.locks, key)
		}
	}
}
