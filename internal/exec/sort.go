package exec

import "sort"

// Sort fully materializes its child into memory, then stable-sorts by
// one column (spec.md §9's fix: materialize-then-sort.SliceStable,
// not the buggy O(n^2) double-consuming variant some earlier drafts
// of this kind of operator use).
type Sort struct {
	child   Operator
	col     string
	desc    bool
	rows    []*Tuple
	pos     int
	started bool
}

// NewSort constructs a Sort over child ordered by col.
func NewSort(child Operator, col string, desc bool) *Sort {
	return &Sort{child: child, col: col, desc: desc}
}

func (s *Sort) Begin() error {
	s.rows = nil
	s.pos = -1
	s.started = false
	return nil
}

func (s *Sort) materialize() error {
	if err := s.child.Begin(); err != nil {
		return err
	}
	for {
		ok, err := s.child.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		t := s.child.NextRecord()
		cp := &Tuple{
			Cols: append([]string{}, t.Cols...),
			Vals: append([]interface{}{}, t.Vals...),
			Rid:  t.Rid,
		}
		s.rows = append(s.rows, cp)
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		vi, _ := s.rows[i].Get(s.col)
		vj, _ := s.rows[j].Get(s.col)
		less := lessThan(vi, vj)
		if s.desc {
			return !less && vi != vj
		}
		return less
	})
	s.started = true
	return nil
}

func lessThan(a, b interface{}) bool {
	if af, aok := asFloat64(a); aok {
		if bf, bok := asFloat64(b); bok {
			return af < bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func (s *Sort) Advance() (bool, error) {
	if !s.started {
		if err := s.materialize(); err != nil {
			return false, err
		}
	}
	s.pos++
	if s.pos >= len(s.rows) {
		return false, nil
	}
	return true, nil
}

func (s *Sort) IsEnd() bool { return s.started && s.pos >= len(s.rows) }
func (s *Sort) NextRecord() *Tuple {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil
	}
	return s.rows[s.pos]
}
func (s *Sort) TupleLen() int     { return s.child.TupleLen() }
func (s *Sort) Columns() []string { return s.child.Columns() }
