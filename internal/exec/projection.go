package exec

// Projection restricts each tuple from child to a fixed list of
// columns, dropping its Rid since the result no longer corresponds to
// exactly one base record.
type Projection struct {
	child Operator
	cols  []string
	cur   *Tuple
	end   bool
}

// NewProjection constructs a Projection over child keeping only cols.
func NewProjection(child Operator, cols []string) *Projection {
	return &Projection{child: child, cols: cols}
}

func (p *Projection) Begin() error {
	p.end = false
	p.cur = nil
	return p.child.Begin()
}

func (p *Projection) Advance() (bool, error) {
	ok, err := p.child.Advance()
	if err != nil {
		return false, err
	}
	if !ok {
		p.end = true
		p.cur = nil
		return false, nil
	}
	src := p.child.NextRecord()
	vals := make([]interface{}, len(p.cols))
	for i, c := range p.cols {
		v, _ := src.Get(c)
		vals[i] = v
	}
	p.cur = &Tuple{Cols: append([]string{}, p.cols...), Vals: vals}
	return true, nil
}

func (p *Projection) IsEnd() bool        { return p.end }
func (p *Projection) NextRecord() *Tuple { return p.cur }
func (p *Projection) TupleLen() int      { return len(p.cols) }
func (p *Projection) Columns() []string  { return p.cols }
