// Package exec implements the pull-model query executor (component
// C5): a uniform operator interface plus SeqScan, NLJoin, Projection,
// Sort, and Update.
//
// Grounded on the teacher's predicate-free DBManager.ScanTableRecords/
// DeleteWhere/UpdateWhere (a closure-callback scan over every
// record), generalized here into real operators behind a single
// interface, and on SimonWaldherr-tinySQL's internal/engine package
// for the shape of a pull-model operator tree (not copied -- tinySQL
// plans over a B+Tree; this keeps the teacher's "callback over every
// record" idea and turns it into begin/advance/is_end/next_record).
package exec

import (
	"strings"

	"github.com/jmcarbo/reldb/internal/catalog"
	"github.com/jmcarbo/reldb/internal/errs"
	"github.com/jmcarbo/reldb/internal/heap"
)

// Tuple is one row flowing through an operator tree: an ordered,
// positional list of columns and values, plus the Rid of the
// underlying record when the tuple still corresponds to exactly one
// base record (left as the zero Rid, PageNo 0, once it has passed
// through a join or projection; page 0 is never a data page). Columns
// from a single base table are qualified as
// "table.column"; a join's output is the plain positional
// concatenation of its two children's columns (left ⊕ right, per
// spec.md §4.5.3), so two same-named columns from either side of a
// self-join are both preserved rather than one silently overwriting
// the other in a name-keyed map.
type Tuple struct {
	Cols []string
	Vals []interface{}
	Rid  heap.Rid
}

// Get resolves name against the tuple's columns: an exact match
// (including a qualified "table.column" reference) wins first;
// otherwise the first column whose bare (unqualified) name matches is
// used, which keeps unqualified references working on any
// single-table or pre-join tuple, where column names are unique.
func (t *Tuple) Get(name string) (interface{}, bool) {
	for i, c := range t.Cols {
		if c == name {
			return t.Vals[i], true
		}
	}
	for i, c := range t.Cols {
		if bareColumn(c) == name {
			return t.Vals[i], true
		}
	}
	return nil, false
}

func bareColumn(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

func qualifiedColumn(table, col string) string {
	if table == "" {
		return col
	}
	return table + "." + col
}

// Operator is the uniform pull-model interface every node in an
// operator tree implements.
type Operator interface {
	Begin() error
	Advance() (bool, error)
	IsEnd() bool
	NextRecord() *Tuple
	Columns() []string
	TupleLen() int
}

// decodeRecord unpacks buf according to tm's column layout into a
// positionally-ordered Tuple.
func decodeRecord(tm *catalog.TabMeta, rid heap.Rid, buf []byte) *Tuple {
	cols := make([]string, len(tm.Cols))
	vals := make([]interface{}, len(tm.Cols))
	for i, c := range tm.Cols {
		cols[i] = qualifiedColumn(c.Table, c.Name)
		vals[i] = decodeValue(c, buf)
	}
	return &Tuple{Cols: cols, Vals: vals, Rid: rid}
}

func decodeValue(c catalog.ColMeta, buf []byte) interface{} {
	field := buf[c.ByteOff : c.ByteOff+c.ByteLen]
	switch c.Type {
	case catalog.ColInt32:
		return int32(le32(field))
	case catalog.ColFloat32:
		return float32FromBits(le32(field))
	case catalog.ColString:
		return stringFromFixedField(field)
	default:
		return nil
	}
}

// encodeValue writes v into buf at column c's offset, per the same
// fixed-width layout decodeValue reads. Per spec.md §4.5.6, INT<->FLOAT
// assignments convert implicitly but a STRING column only accepts a
// string value; anything else raises IncompatibleType rather than
// panicking on the type assertion.
func encodeValue(c catalog.ColMeta, buf []byte, v interface{}) error {
	field := buf[c.ByteOff : c.ByteOff+c.ByteLen]
	switch c.Type {
	case catalog.ColInt32:
		putLE32(field, uint32(toInt32(v)))
	case catalog.ColFloat32:
		putLE32(field, float32Bits(toFloat32(v)))
	default: // ColString
		s, ok := v.(string)
		if !ok {
			return errs.Newf(errs.IncompatibleType, "cannot assign %T to STRING column %q", v, c.Name)
		}
		for i := range field {
			field[i] = 0
		}
		copy(field, []byte(s))
	}
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// stringFromFixedField returns the string stored in a fixed-width
// STRING(n) field: the effective length is min(declared length,
// offset of the first NUL byte), per spec.md's explicit definition
// (not C-string semantics over embedded NULs elsewhere in the field).
func stringFromFixedField(field []byte) string {
	n := len(field)
	for i, b := range field {
		if b == 0 {
			n = i
			break
		}
	}
	return string(field[:n])
}
