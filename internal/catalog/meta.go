// Package catalog implements the database/table catalog and storage
// manager (component C4): DB directory lifecycle, table lifecycle,
// and the DB_META text-serialized snapshot.
//
// Grounded on the teacher's db.DBManager (AddTable/RemoveTable/
// SaveState/LoadState/DescribeTable) and on spec.md §9's REDESIGN
// FLAG: unlike the teacher, Manager takes an absolute base path at
// construction and never calls os.Chdir.
package catalog

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmcarbo/reldb/internal/errs"
)

// ColType tags a column's storage representation (spec.md §3).
type ColType uint8

const (
	ColInt32 ColType = iota
	ColFloat32
	ColString
)

func (t ColType) String() string {
	switch t {
	case ColInt32:
		return "INT32"
	case ColFloat32:
		return "FLOAT32"
	case ColString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

func parseColType(s string) (ColType, error) {
	switch s {
	case "INT32":
		return ColInt32, nil
	case "FLOAT32":
		return ColFloat32, nil
	case "STRING":
		return ColString, nil
	default:
		return 0, errs.Newf(errs.Internal, "unknown column type %q", s)
	}
}

// ColMeta describes one column of a table.
type ColMeta struct {
	Table   string
	Name    string
	Type    ColType
	ByteLen int
	ByteOff int
	Indexed bool
}

// IndexMeta names a secondary index over one or more columns of a
// table, following the indexName(table, cols) naming convention.
type IndexMeta struct {
	Name string
	Cols []string
}

// TabMeta describes one table's schema.
type TabMeta struct {
	Name       string
	Cols       []ColMeta
	Indexes    []IndexMeta
	RecordSize int
}

// ColByName finds a column by name, or returns ColumnNotFound.
func (t *TabMeta) ColByName(name string) (*ColMeta, error) {
	for i := range t.Cols {
		if t.Cols[i].Name == name {
			return &t.Cols[i], nil
		}
	}
	return nil, errs.Newf(errs.ColumnNotFound, "column %q not found in table %q", name, t.Name)
}

// encodeMeta renders the canonical DB_META grammar: a "DB <name>" first
// line, then one block per table (in name order, no blank lines
// between blocks), each a "TABLE <name> <recordSize>" header followed
// by one "COL <name> <type> <byteLen> <byteOff> <indexed>" line per
// column and one "INDEX <name> <col1>,<col2>,..." line per index.
// This is a spec-mandated on-disk format, not a generic serialization
// concern, so it is hand-rolled rather than reusing the YAML/JSON
// machinery in internal/config (see DESIGN.md).
func encodeMeta(dbName string, tables map[string]*TabMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DB %s\n", dbName)
	for _, name := range sortedKeys(tables) {
		t := tables[name]
		fmt.Fprintf(&b, "TABLE %s %d\n", t.Name, t.RecordSize)
		for _, c := range t.Cols {
			indexed := 0
			if c.Indexed {
				indexed = 1
			}
			fmt.Fprintf(&b, "COL %s %s %d %d %d\n", c.Name, c.Type, c.ByteLen, c.ByteOff, indexed)
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(&b, "INDEX %s %s\n", idx.Name, strings.Join(idx.Cols, ","))
		}
	}
	return b.String()
}

func sortedKeys(m map[string]*TabMeta) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// decodeMeta parses the DB_META grammar produced by encodeMeta.
func decodeMeta(text string) (dbName string, tables map[string]*TabMeta, err error) {
	tables = make(map[string]*TabMeta)
	sc := bufio.NewScanner(strings.NewReader(text))
	var cur *TabMeta
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "DB":
			if len(fields) != 2 {
				return "", nil, errs.New(errs.Internal, "malformed DB_META: DB line")
			}
			dbName = fields[1]
		case "TABLE":
			if len(fields) != 3 {
				return "", nil, errs.New(errs.Internal, "malformed DB_META: TABLE line")
			}
			recSize, perr := strconv.Atoi(fields[2])
			if perr != nil {
				return "", nil, errs.Wrap(errs.Internal, perr, "parse record size")
			}
			cur = &TabMeta{Name: fields[1], RecordSize: recSize}
			tables[cur.Name] = cur
		case "COL":
			if cur == nil || len(fields) != 6 {
				return "", nil, errs.New(errs.Internal, "malformed DB_META: COL line")
			}
			ct, perr := parseColType(fields[2])
			if perr != nil {
				return "", nil, perr
			}
			byteLen, e1 := strconv.Atoi(fields[3])
			byteOff, e2 := strconv.Atoi(fields[4])
			indexed, e3 := strconv.Atoi(fields[5])
			if e1 != nil || e2 != nil || e3 != nil {
				return "", nil, errs.New(errs.Internal, "malformed DB_META: COL integers")
			}
			cur.Cols = append(cur.Cols, ColMeta{
				Table:   cur.Name,
				Name:    fields[1],
				Type:    ct,
				ByteLen: byteLen,
				ByteOff: byteOff,
				Indexed: indexed != 0,
			})
		case "INDEX":
			if cur == nil || len(fields) != 3 {
				return "", nil, errs.New(errs.Internal, "malformed DB_META: INDEX line")
			}
			cur.Indexes = append(cur.Indexes, IndexMeta{Name: fields[1], Cols: strings.Split(fields[2], ",")})
		default:
			return "", nil, errs.Newf(errs.Internal, "malformed DB_META: unknown line tag %q", fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return "", nil, errs.Wrap(errs.IoError, err, "scan DB_META")
	}
	return dbName, tables, nil
}
