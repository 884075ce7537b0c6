package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jmcarbo/reldb/internal/catalog"
	"github.com/jmcarbo/reldb/internal/config"
	"github.com/jmcarbo/reldb/internal/exec"
	"github.com/jmcarbo/reldb/internal/txn"
)

// Shell is the line-oriented command processor, grounded on the
// teacher's sgbd.SGBD.Run()/ProcessCommand: a scanner over stdin
// dispatching on a command keyword, writing results to an io.Writer.
type Shell struct {
	cat     *catalog.Manager
	indexes map[string]map[string]txn.SecondaryIndex // table -> column -> index
}

// NewShell constructs a Shell backed by a catalog.Manager rooted at
// cfg.DBPath.
func NewShell(cfg *config.Config) (*Shell, error) {
	cat, err := catalog.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Shell{cat: cat, indexes: make(map[string]map[string]txn.SecondaryIndex)}, nil
}

// Run reads commands from r until EXIT or EOF, writing output to w.
func (s *Shell) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "EXIT") {
			return nil
		}
		if err := s.ProcessCommand(line, w); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// ProcessCommand parses and executes a single command text, writing
// output to w.
func (s *Shell) ProcessCommand(text string, w io.Writer) error {
	up := strings.ToUpper(text)
	switch {
	case strings.HasPrefix(up, "CREATE DATABASE "):
		return s.cmdCreateDatabase(text, w)
	case strings.HasPrefix(up, "DROP DATABASE "):
		return s.cmdDropDatabase(text, w)
	case strings.HasPrefix(up, "OPEN DATABASE "):
		return s.cmdOpenDatabase(text, w)
	case strings.HasPrefix(up, "CLOSE DATABASE"):
		return s.cat.CloseDB()
	case strings.HasPrefix(up, "CREATE TABLE "):
		return s.cmdCreateTable(text, w)
	case strings.HasPrefix(up, "DROP TABLE "):
		return s.cat.DropTable(strings.TrimSpace(text[len("DROP TABLE "):]))
	case strings.HasPrefix(up, "SHOW TABLES"):
		return s.cmdShowTables(w)
	case strings.HasPrefix(up, "DESCRIBE TABLE "):
		return s.cmdDescribeTable(text, w)
	case strings.HasPrefix(up, "INSERT INTO "):
		return s.cmdInsert(text, w)
	case strings.HasPrefix(up, "SELECT "):
		return s.cmdSelect(text, w)
	case strings.HasPrefix(up, "UPDATE "):
		return s.cmdUpdate(text, w)
	default:
		return fmt.Errorf("unsupported command: %s", text)
	}
}

func (s *Shell) cmdCreateDatabase(text string, w io.Writer) error {
	name := strings.TrimSpace(text[len("CREATE DATABASE "):])
	if err := s.cat.CreateDB(name); err != nil {
		return err
	}
	fmt.Fprintf(w, "database %s created\n", name)
	return nil
}

func (s *Shell) cmdDropDatabase(text string, w io.Writer) error {
	name := strings.TrimSpace(text[len("DROP DATABASE "):])
	if err := s.cat.DropDB(name); err != nil {
		return err
	}
	fmt.Fprintf(w, "database %s dropped\n", name)
	return nil
}

func (s *Shell) cmdOpenDatabase(text string, w io.Writer) error {
	name := strings.TrimSpace(text[len("OPEN DATABASE "):])
	if err := s.cat.OpenDB(name); err != nil {
		return err
	}
	if err := s.rebuildIndexes(); err != nil {
		return err
	}
	fmt.Fprintf(w, "database %s open\n", name)
	return nil
}

// rebuildIndexes reconstructs every indexed column's in-memory
// secondary index from its heap file's current contents. Secondary
// indexes are explicitly out of scope as a durable structure (spec.md
// §1 Non-goals exclude a real B+Tree index); this module's in-memory
// stand-in is rebuilt from the record file itself on every open,
// rather than persisted, which is simpler than shipping a second
// on-disk format just for index state.
func (s *Shell) rebuildIndexes() error {
	names, err := s.cat.ShowTables()
	if err != nil {
		return err
	}
	s.indexes = make(map[string]map[string]txn.SecondaryIndex, len(names))
	for _, name := range names {
		hf, tm, err := s.cat.HeapFile(name)
		if err != nil {
			return err
		}
		idxMap := make(map[string]txn.SecondaryIndex)
		for _, c := range tm.Cols {
			if c.Indexed {
				idxMap[c.Name] = txn.NewMemIndex()
			}
		}
		if len(idxMap) > 0 {
			sc := hf.NewScanner()
			for {
				ok, err := sc.Advance()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				rec := sc.NextRecord()
				for _, c := range tm.Cols {
					if idx, ok := idxMap[c.Name]; ok {
						field := rec[c.ByteOff : c.ByteOff+c.ByteLen]
						key := append([]byte(nil), trimNul(field)...)
						if err := idx.InsertEntry(key, sc.Rid()); err != nil {
							return err
						}
					}
				}
			}
		}
		s.indexes[name] = idxMap
	}
	return nil
}

func trimNul(field []byte) []byte {
	for i, b := range field {
		if b == 0 {
			return field[:i]
		}
	}
	return field
}

func (s *Shell) cmdShowTables(w io.Writer) error {
	names, err := s.cat.ShowTables()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

func (s *Shell) cmdDescribeTable(text string, w io.Writer) error {
	name := strings.TrimSpace(text[len("DESCRIBE TABLE "):])
	tm, err := s.cat.DescTable(name)
	if err != nil {
		return err
	}
	for _, c := range tm.Cols {
		fmt.Fprintf(w, "%s %s\n", c.Name, c.Type)
	}
	return nil
}

// cmdCreateTable expects: CREATE TABLE name (col:TYPE, col:TYPE(n), ...)
func (s *Shell) cmdCreateTable(text string, w io.Writer) error {
	idx := strings.Index(text, "(")
	if idx < 0 || !strings.HasSuffix(strings.TrimSpace(text), ")") {
		return fmt.Errorf("invalid CREATE TABLE syntax")
	}
	pre := strings.Fields(strings.TrimSpace(text[:idx]))
	if len(pre) < 3 {
		return fmt.Errorf("invalid CREATE TABLE syntax")
	}
	name := pre[2]
	body := strings.TrimSpace(text[idx+1:])
	body = strings.TrimSuffix(body, ")")

	var cols []catalog.ColMeta
	off := 0
	for _, spec := range strings.Split(body, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid column spec: %s", spec)
		}
		colName := strings.TrimSpace(parts[0])
		typeSpec := strings.ToUpper(strings.TrimSpace(parts[1]))
		indexed := strings.HasSuffix(typeSpec, " INDEX")
		if indexed {
			typeSpec = strings.TrimSpace(strings.TrimSuffix(typeSpec, "INDEX"))
		}

		var ct catalog.ColType
		var byteLen int
		switch {
		case typeSpec == "INT32" || typeSpec == "INT":
			ct, byteLen = catalog.ColInt32, 4
		case typeSpec == "FLOAT32" || typeSpec == "FLOAT":
			ct, byteLen = catalog.ColFloat32, 4
		case strings.HasPrefix(typeSpec, "STRING(") && strings.HasSuffix(typeSpec, ")"):
			n, err := strconv.Atoi(typeSpec[len("STRING(") : len(typeSpec)-1])
			if err != nil {
				return fmt.Errorf("col %s: invalid string length: %v", colName, err)
			}
			ct, byteLen = catalog.ColString, n
		default:
			return fmt.Errorf("col %s: unknown type %s", colName, typeSpec)
		}
		cols = append(cols, catalog.ColMeta{Table: name, Name: colName, Type: ct, ByteLen: byteLen, ByteOff: off, Indexed: indexed})
		off += byteLen
	}

	tm := &catalog.TabMeta{Name: name, Cols: cols, RecordSize: off}
	if err := s.cat.CreateTable(tm); err != nil {
		return err
	}
	idxMap := make(map[string]txn.SecondaryIndex)
	for _, c := range cols {
		if c.Indexed {
			idxMap[c.Name] = txn.NewMemIndex()
		}
	}
	s.indexes[name] = idxMap
	fmt.Fprintf(w, "table %s created\n", name)
	return nil
}

// cmdInsert expects: INSERT INTO table VALUES (v1, v2, ...)
func (s *Shell) cmdInsert(text string, w io.Writer) error {
	rest := strings.TrimSpace(text[len("INSERT INTO "):])
	fields := strings.SplitN(rest, "VALUES", 2)
	if len(fields) != 2 {
		fields = strings.SplitN(rest, "values", 2)
	}
	if len(fields) != 2 {
		return fmt.Errorf("invalid INSERT syntax")
	}
	tableName := strings.TrimSpace(fields[0])
	valText := strings.TrimSpace(fields[1])
	valText = strings.TrimPrefix(valText, "(")
	valText = strings.TrimSuffix(valText, ")")
	rawVals := splitValues(valText)

	hf, tm, err := s.cat.HeapFile(tableName)
	if err != nil {
		return err
	}
	if len(rawVals) != len(tm.Cols) {
		return fmt.Errorf("arity mismatch: expected %d values, got %d", len(tm.Cols), len(rawVals))
	}

	buf := make([]byte, tm.RecordSize)
	for i, c := range tm.Cols {
		if err := writeField(buf, c, rawVals[i]); err != nil {
			return err
		}
	}
	rid, err := hf.Insert(buf)
	if err != nil {
		return err
	}
	for i, c := range tm.Cols {
		if c.Indexed {
			if idx, ok := s.indexes[tableName][c.Name]; ok {
				if err := idx.InsertEntry([]byte(strings.TrimSpace(rawVals[i])), rid); err != nil {
					return err
				}
			}
		}
	}
	fmt.Fprintf(w, "inserted into %s at page=%d slot=%d\n", tableName, rid.PageNo, rid.SlotNo)
	return nil
}

func splitValues(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func writeField(buf []byte, c catalog.ColMeta, raw string) error {
	field := buf[c.ByteOff : c.ByteOff+c.ByteLen]
	switch c.Type {
	case catalog.ColInt32:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("col %s: invalid int32: %v", c.Name, err)
		}
		binary.LittleEndian.PutUint32(field, uint32(int32(v)))
	case catalog.ColFloat32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return fmt.Errorf("col %s: invalid float32: %v", c.Name, err)
		}
		binary.LittleEndian.PutUint32(field, math.Float32bits(float32(f)))
	case catalog.ColString:
		for i := range field {
			field[i] = 0
		}
		b := []byte(raw)
		if len(b) > len(field) {
			b = b[:len(field)]
		}
		copy(field, b)
	}
	return nil
}

// cmdSelect expects: SELECT * FROM table [WHERE col OP value]
func (s *Shell) cmdSelect(text string, w io.Writer) error {
	rest := strings.TrimSpace(text[len("SELECT "):])
	fromIdx := strings.Index(strings.ToUpper(rest), "FROM ")
	if fromIdx < 0 {
		return fmt.Errorf("invalid SELECT syntax")
	}
	afterFrom := strings.TrimSpace(rest[fromIdx+len("FROM "):])
	whereIdx := strings.Index(strings.ToUpper(afterFrom), "WHERE ")
	var tableName string
	pred := exec.Predicate{}
	if whereIdx >= 0 {
		tableName = strings.TrimSpace(afterFrom[:whereIdx])
		cond, err := parseCondition(strings.TrimSpace(afterFrom[whereIdx+len("WHERE "):]))
		if err != nil {
			return err
		}
		pred.Conditions = append(pred.Conditions, cond)
	} else {
		tableName = afterFrom
	}

	hf, tm, err := s.cat.HeapFile(tableName)
	if err != nil {
		return err
	}
	scan := exec.NewSeqScan(tm, hf, pred)
	if err := scan.Begin(); err != nil {
		return err
	}
	for {
		ok, err := scan.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row := scan.NextRecord()
		printRow(w, tm, row)
	}
	return nil
}

func printRow(w io.Writer, tm *catalog.TabMeta, row *exec.Tuple) {
	parts := make([]string, len(tm.Cols))
	for i, c := range tm.Cols {
		v, _ := row.Get(c.Name)
		parts[i] = fmt.Sprintf("%v", v)
	}
	fmt.Fprintln(w, strings.Join(parts, "|"))
}

func parseCondition(s string) (exec.Condition, error) {
	for _, o := range []struct {
		text string
		op   exec.CompareOp
	}{
		{">=", exec.OpGe}, {"<=", exec.OpLe}, {"!=", exec.OpNe},
		{"=", exec.OpEq}, {">", exec.OpGt}, {"<", exec.OpLt},
	} {
		if idx := strings.Index(s, o.text); idx >= 0 {
			col := strings.TrimSpace(s[:idx])
			valText := strings.TrimSpace(s[idx+len(o.text):])
			return exec.Condition{Column: col, Op: o.op, Value: parseLiteral(valText)}, nil
		}
	}
	return exec.Condition{}, fmt.Errorf("invalid WHERE clause: %s", s)
}

func parseLiteral(s string) interface{} {
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(v)
	}
	if v, err := strconv.ParseFloat(s, 32); err == nil {
		return float32(v)
	}
	return strings.Trim(s, `"'`)
}

// cmdUpdate expects: UPDATE table SET col=value WHERE col OP value
func (s *Shell) cmdUpdate(text string, w io.Writer) error {
	rest := strings.TrimSpace(text[len("UPDATE "):])
	setIdx := strings.Index(strings.ToUpper(rest), "SET ")
	if setIdx < 0 {
		return fmt.Errorf("invalid UPDATE syntax")
	}
	tableName := strings.TrimSpace(rest[:setIdx])
	afterSet := strings.TrimSpace(rest[setIdx+len("SET "):])
	whereIdx := strings.Index(strings.ToUpper(afterSet), "WHERE ")

	var assignText string
	pred := exec.Predicate{}
	if whereIdx >= 0 {
		assignText = strings.TrimSpace(afterSet[:whereIdx])
		cond, err := parseCondition(strings.TrimSpace(afterSet[whereIdx+len("WHERE "):]))
		if err != nil {
			return err
		}
		pred.Conditions = append(pred.Conditions, cond)
	} else {
		assignText = afterSet
	}

	eqIdx := strings.Index(assignText, "=")
	if eqIdx < 0 {
		return fmt.Errorf("invalid SET clause: %s", assignText)
	}
	col := strings.TrimSpace(assignText[:eqIdx])
	val := parseLiteral(strings.TrimSpace(assignText[eqIdx+1:]))

	hf, tm, err := s.cat.HeapFile(tableName)
	if err != nil {
		return err
	}
	scan := exec.NewSeqScan(tm, hf, pred)
	upd := exec.NewUpdate(tm, hf, scan, []exec.Assignment{{Column: col, Value: val}}, nil, "", s.indexes[tableName])
	if err := upd.Begin(); err != nil {
		return err
	}
	for {
		ok, err := upd.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	fmt.Fprintf(w, "updated %d row(s)\n", upd.UpdatedCount())
	return nil
}
