package exec

import (
	"github.com/jmcarbo/reldb/internal/catalog"
	"github.com/jmcarbo/reldb/internal/heap"
)

// SeqScan reads every live record of one table in page/slot order,
// optionally filtering by a Predicate. Grounded on the teacher's
// DBManager.ScanTableRecords, which likewise walks every record of a
// relation applying a caller-supplied filter closure.
type SeqScan struct {
	tm   *catalog.TabMeta
	hf   *heap.File
	pred Predicate
	sc   *heap.Scanner
	cur  *Tuple
	end  bool
}

// NewSeqScan constructs a scan over hf using tm's column layout,
// applying pred (a zero-value Predicate matches every record).
func NewSeqScan(tm *catalog.TabMeta, hf *heap.File, pred Predicate) *SeqScan {
	return &SeqScan{tm: tm, hf: hf, pred: pred}
}

func (s *SeqScan) Begin() error {
	s.sc = s.hf.NewScanner()
	s.cur = nil
	s.end = false
	return nil
}

func (s *SeqScan) Advance() (bool, error) {
	for {
		ok, err := s.sc.Advance()
		if err != nil {
			return false, err
		}
		if !ok {
			s.end = true
			s.cur = nil
			return false, nil
		}
		t := decodeRecord(s.tm, s.sc.Rid(), s.sc.NextRecord())
		match, err := s.pred.Eval(t)
		if err != nil {
			return false, err
		}
		if match {
			s.cur = t
			return true, nil
		}
	}
}

func (s *SeqScan) IsEnd() bool           { return s.end }
func (s *SeqScan) NextRecord() *Tuple    { return s.cur }
func (s *SeqScan) TupleLen() int         { return s.hf.RecordSize() }
func (s *SeqScan) Columns() []string {
	cols := make([]string, len(s.tm.Cols))
	for i, c := range s.tm.Cols {
		cols[i] = qualifiedColumn(c.Table, c.Name)
	}
	return cols
}
