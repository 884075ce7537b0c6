package exec

// NLJoin is a nested-loop join: for each outer tuple, rescans the
// inner operator from the beginning and yields every pair satisfying
// pred. Grounded on spec.md §4.5.2's pull-model join algorithm; the
// inner child must support repeated Begin() calls (every operator in
// this package does).
type NLJoin struct {
	outer, inner Operator
	pred         Predicate
	outerCur     *Tuple
	cur          *Tuple
	started      bool
	end          bool
}

// NewNLJoin constructs a join of outer and inner filtered by pred.
func NewNLJoin(outer, inner Operator, pred Predicate) *NLJoin {
	return &NLJoin{outer: outer, inner: inner, pred: pred}
}

func (j *NLJoin) Begin() error {
	if err := j.outer.Begin(); err != nil {
		return err
	}
	j.started = false
	j.end = false
	j.cur = nil
	j.outerCur = nil
	return nil
}

func (j *NLJoin) Advance() (bool, error) {
	for {
		if !j.started {
			ok, err := j.outer.Advance()
			if err != nil {
				return false, err
			}
			if !ok {
				j.end = true
				j.cur = nil
				return false, nil
			}
			j.outerCur = j.outer.NextRecord()
			if err := j.inner.Begin(); err != nil {
				return false, err
			}
			j.started = true
		}

		ok, err := j.inner.Advance()
		if err != nil {
			return false, err
		}
		if !ok {
			j.started = false
			continue
		}
		innerCur := j.inner.NextRecord()
		combined := combine(j.outerCur, innerCur)
		match, err := j.pred.Eval(combined)
		if err != nil {
			return false, err
		}
		if match {
			j.cur = combined
			return true, nil
		}
	}
}

// combine concatenates outer and inner positionally -- left ⊕ right,
// right offsets conceptually shifted by left.TupleLen() -- per
// spec.md §4.5.3. Unlike a name-keyed map, this preserves both values
// when outer and inner share a column name (e.g. a self-join), since
// each occupies its own slot in Cols/Vals rather than overwriting the
// other under one map key.
func combine(a, b *Tuple) *Tuple {
	cols := make([]string, 0, len(a.Cols)+len(b.Cols))
	vals := make([]interface{}, 0, len(a.Vals)+len(b.Vals))
	cols = append(cols, a.Cols...)
	cols = append(cols, b.Cols...)
	vals = append(vals, a.Vals...)
	vals = append(vals, b.Vals...)
	return &Tuple{Cols: cols, Vals: vals}
}

func (j *NLJoin) IsEnd() bool        { return j.end }
func (j *NLJoin) NextRecord() *Tuple { return j.cur }
func (j *NLJoin) TupleLen() int      { return j.outer.TupleLen() + j.inner.TupleLen() }
func (j *NLJoin) Columns() []string {
	return append(append([]string{}, j.outer.Columns()...), j.inner.Columns()...)
}
