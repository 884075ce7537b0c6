package exec

import (
	"fmt"

	"github.com/jmcarbo/reldb/internal/catalog"
	"github.com/jmcarbo/reldb/internal/heap"
	"github.com/jmcarbo/reldb/internal/txn"
)

// Assignment sets one column to a new literal value.
type Assignment struct {
	Column string
	Value  interface{}
}

// Update scans source for rows matching its Predicate and rewrites
// the assigned columns in place, maintaining any secondary index
// registered on a changed, indexed column (spec.md §4.5.6, S6).
// Grounded on the teacher's DBManager.UpdateWhere, generalized from
// its ad hoc in-loop field mutation to a real child operator plus
// explicit lock-manager and index-maintenance call sites.
type Update struct {
	tm      *catalog.TabMeta
	hf      *heap.File
	source  Operator
	assigns []Assignment
	locker  *txn.LockManager
	holder  string
	indexes map[string]txn.SecondaryIndex // column name -> index

	end     bool
	updated int
}

// NewUpdate constructs an Update. locker/holder may be nil/"" to skip
// locking (used by tests that drive heap directly); indexes maps
// indexed column names to their maintained SecondaryIndex.
func NewUpdate(tm *catalog.TabMeta, hf *heap.File, source Operator, assigns []Assignment, locker *txn.LockManager, holder string, indexes map[string]txn.SecondaryIndex) *Update {
	return &Update{tm: tm, hf: hf, source: source, assigns: assigns, locker: locker, holder: holder, indexes: indexes}
}

func (u *Update) Begin() error {
	u.end = false
	u.updated = 0
	return u.source.Begin()
}

func (u *Update) Advance() (bool, error) {
	ok, err := u.source.Advance()
	if err != nil {
		return false, err
	}
	if !ok {
		u.end = true
		return false, nil
	}
	t := u.source.NextRecord()

	if u.locker != nil {
		if err := u.locker.AcquireExclusive(u.holder, ridKey(t.Rid)); err != nil {
			return false, err
		}
	}

	old, err := u.hf.Get(t.Rid)
	if err != nil {
		return false, err
	}
	newBuf := make([]byte, len(old))
	copy(newBuf, old)

	oldVals := make(map[string]interface{}, len(u.tm.Cols))
	for _, c := range u.tm.Cols {
		oldVals[c.Name] = decodeValue(c, old)
	}

	for _, a := range u.assigns {
		col, err := u.tm.ColByName(a.Column)
		if err != nil {
			return false, err
		}
		if err := encodeValue(*col, newBuf, a.Value); err != nil {
			return false, err
		}
	}

	if err := u.hf.Update(t.Rid, newBuf); err != nil {
		return false, err
	}

	for _, a := range u.assigns {
		if idx, ok := u.indexes[a.Column]; ok {
			oldKey := []byte(keyOf(oldVals[a.Column]))
			newKey := []byte(keyOf(a.Value))
			if err := idx.DeleteEntry(oldKey, t.Rid); err != nil {
				return false, err
			}
			if err := idx.InsertEntry(newKey, t.Rid); err != nil {
				return false, err
			}
		}
	}

	u.updated++
	return true, nil
}

func ridKey(r heap.Rid) string {
	return fmt.Sprintf("%d:%d", r.PageNo, r.SlotNo)
}

func keyOf(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case int32:
		return fmt.Sprintf("%d", n)
	case float32:
		return fmt.Sprintf("%g", n)
	default:
		return ""
	}
}

func (u *Update) IsEnd() bool { return u.end }

// NextRecord always returns nil: per spec.md §4.5.6, Update "has no
// yielded tuples" -- it drives its side effects (the rewrite and any
// index maintenance) to completion on Advance and returns null.
func (u *Update) NextRecord() *Tuple { return nil }
func (u *Update) TupleLen() int      { return u.source.TupleLen() }
func (u *Update) Columns() []string  { return u.source.Columns() }

// UpdatedCount returns the number of rows touched so far.
func (u *Update) UpdatedCount() int { return u.updated }
