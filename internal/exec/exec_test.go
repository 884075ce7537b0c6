package exec_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcarbo/reldb/internal/buffer"
	"github.com/jmcarbo/reldb/internal/catalog"
	"github.com/jmcarbo/reldb/internal/config"
	"github.com/jmcarbo/reldb/internal/disk"
	"github.com/jmcarbo/reldb/internal/errs"
	"github.com/jmcarbo/reldb/internal/exec"
	"github.com/jmcarbo/reldb/internal/heap"
	"github.com/jmcarbo/reldb/internal/txn"
)

// users: id INT32 @0, age INT32 @4, name STRING(8) @8, recordSize=16
func usersSchema() *catalog.TabMeta {
	return &catalog.TabMeta{
		Name:       "users",
		RecordSize: 16,
		Cols: []catalog.ColMeta{
			{Table: "users", Name: "id", Type: catalog.ColInt32, ByteLen: 4, ByteOff: 0},
			{Table: "users", Name: "age", Type: catalog.ColInt32, ByteLen: 4, ByteOff: 4},
			{Table: "users", Name: "name", Type: catalog.ColString, ByteLen: 8, ByteOff: 8, Indexed: true},
		},
	}
}

// orders: uid INT32 @0, total INT32 @4, recordSize=8
func ordersSchema() *catalog.TabMeta {
	return &catalog.TabMeta{
		Name:       "orders",
		RecordSize: 8,
		Cols: []catalog.ColMeta{
			{Table: "orders", Name: "uid", Type: catalog.ColInt32, ByteLen: 4, ByteOff: 0},
			{Table: "orders", Name: "total", Type: catalog.ColInt32, ByteLen: 4, ByteOff: 4},
		},
	}
}

func encodeOrder(uid, total int32) []byte {
	buf := make([]byte, 8)
	putLE32(buf[0:4], uint32(uid))
	putLE32(buf[4:8], uint32(total))
	return buf
}

func encodeUser(id, age int32, name string) []byte {
	buf := make([]byte, 16)
	putLE32(buf[0:4], uint32(id))
	putLE32(buf[4:8], uint32(age))
	copy(buf[8:16], []byte(name))
	return buf
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func newHeapFile(t *testing.T, recordSize, numSlots int) *heap.File {
	dir := t.TempDir()
	dm := disk.New(4096, filepath.Join(dir, "LOG"), config.CompressNone)
	path := filepath.Join(dir, "tbl")
	require.NoError(t, dm.CreateFile(path))
	fd, err := dm.OpenFile(path)
	require.NoError(t, err)
	pool := buffer.New(dm, 8, 4096, buffer.PolicyLRU)
	f, err := heap.Create(fd, pool, recordSize, numSlots)
	require.NoError(t, err)
	return f
}

func drain(t *testing.T, op exec.Operator) []*exec.Tuple {
	require.NoError(t, op.Begin())
	var out []*exec.Tuple
	for {
		ok, err := op.Advance()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, op.NextRecord())
	}
	assert.True(t, op.IsEnd())
	return out
}

func TestSeqScanUnqualifiedReturnsAllLiveRows(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	for _, u := range [][3]interface{}{{int32(1), int32(20), "ann"}, {int32(2), int32(30), "bob"}} {
		_, err := hf.Insert(encodeUser(u[0].(int32), u[1].(int32), u[2].(string)))
		require.NoError(t, err)
	}

	scan := exec.NewSeqScan(tm, hf, exec.Predicate{})
	rows := drain(t, scan)
	assert.Len(t, rows, 2)
}

func TestSeqScanWithPredicateFiltersRows(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	_, err := hf.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)
	_, err = hf.Insert(encodeUser(2, 30, "bob"))
	require.NoError(t, err)

	pred := exec.Predicate{Conditions: []exec.Condition{{Column: "age", Op: exec.OpGe, Value: int32(25)}}}
	scan := exec.NewSeqScan(tm, hf, pred)
	rows := drain(t, scan)
	require.Len(t, rows, 1)
	name, ok := rows[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "bob", name)
}

func TestSeqScanIncompatibleTypeComparisonFails(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	_, err := hf.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)

	pred := exec.Predicate{Conditions: []exec.Condition{{Column: "name", Op: exec.OpEq, Value: int32(1)}}}
	scan := exec.NewSeqScan(tm, hf, pred)
	require.NoError(t, scan.Begin())
	_, err = scan.Advance()
	assert.True(t, errs.Is(err, errs.IncompatibleType))
}

func TestNLJoinCombinesMatchingRows(t *testing.T) {
	tm := usersSchema()
	left := newHeapFile(t, 16, 4)
	right := newHeapFile(t, 16, 4)
	_, err := left.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)
	_, err = right.Insert(encodeUser(1, 99, "dept"))
	require.NoError(t, err)
	_, err = right.Insert(encodeUser(2, 99, "other"))
	require.NoError(t, err)

	outer := exec.NewSeqScan(tm, left, exec.Predicate{})
	inner := exec.NewSeqScan(tm, right, exec.Predicate{})
	join := exec.NewNLJoin(outer, inner, exec.Predicate{})
	rows := drain(t, join)
	assert.Len(t, rows, 2)
}

// TestNLJoinEquiJoinOnRightColumn covers S4: left = {(1),(2)} joined to
// right = {(10),(20)} on L.x = R.y/10 (here simplified to an equality
// on values that already carry the same scale, uid = id), should yield
// exactly the matching (outer, inner) pairs and no others.
func TestNLJoinEquiJoinOnRightColumn(t *testing.T) {
	users := usersSchema()
	orders := ordersSchema()
	left := newHeapFile(t, 16, 4)
	right := newHeapFile(t, 8, 4)
	_, err := left.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)
	_, err = left.Insert(encodeUser(2, 30, "bob"))
	require.NoError(t, err)
	_, err = right.Insert(encodeOrder(1, 100))
	require.NoError(t, err)
	_, err = right.Insert(encodeOrder(2, 200))
	require.NoError(t, err)
	_, err = right.Insert(encodeOrder(1, 300))
	require.NoError(t, err)

	outer := exec.NewSeqScan(users, left, exec.Predicate{})
	inner := exec.NewSeqScan(orders, right, exec.Predicate{})
	pred := exec.Predicate{Conditions: []exec.Condition{{Column: "users.id", Op: exec.OpEq, RightColumn: "orders.uid"}}}
	join := exec.NewNLJoin(outer, inner, pred)
	rows := drain(t, join)
	require.Len(t, rows, 3)
	for _, r := range rows {
		id, ok := r.Get("users.id")
		require.True(t, ok)
		uid, ok := r.Get("orders.uid")
		require.True(t, ok)
		assert.Equal(t, id, uid)
	}
}

func TestProjectionKeepsOnlyRequestedColumns(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	_, err := hf.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)

	scan := exec.NewSeqScan(tm, hf, exec.Predicate{})
	proj := exec.NewProjection(scan, []string{"name"})
	rows := drain(t, proj)
	require.Len(t, rows, 1)
	name, ok := rows[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "ann", name)
	_, hasAge := rows[0].Get("age")
	assert.False(t, hasAge)
}

func TestSortOrdersByColumnAscending(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	_, err := hf.Insert(encodeUser(1, 30, "ann"))
	require.NoError(t, err)
	_, err = hf.Insert(encodeUser(2, 10, "bob"))
	require.NoError(t, err)
	_, err = hf.Insert(encodeUser(3, 20, "cid"))
	require.NoError(t, err)

	scan := exec.NewSeqScan(tm, hf, exec.Predicate{})
	srt := exec.NewSort(scan, "age", false)
	rows := drain(t, srt)
	require.Len(t, rows, 3)
	age0, _ := rows[0].Get("age")
	age1, _ := rows[1].Get("age")
	age2, _ := rows[2].Get("age")
	assert.Equal(t, int32(10), age0)
	assert.Equal(t, int32(20), age1)
	assert.Equal(t, int32(30), age2)
}

func TestUpdateRewritesColumnAndMaintainsIndex(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	rid, err := hf.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)

	idx := txn.NewMemIndex()
	require.NoError(t, idx.InsertEntry([]byte("ann"), rid))

	scan := exec.NewSeqScan(tm, hf, exec.Predicate{})
	indexes := map[string]txn.SecondaryIndex{"name": idx}
	upd := exec.NewUpdate(tm, hf, scan, []exec.Assignment{{Column: "name", Value: "zoe"}}, nil, "", indexes)

	require.NoError(t, upd.Begin())
	advances := 0
	for {
		ok, err := upd.Advance()
		require.NoError(t, err)
		if !ok {
			break
		}
		advances++
		assert.Nil(t, upd.NextRecord(), "Update yields no tuples; next_record drives side effects and returns null")
	}
	assert.True(t, upd.IsEnd())
	assert.Equal(t, 1, advances)
	assert.Equal(t, 1, upd.UpdatedCount())

	got, err := hf.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("zoe\x00\x00\x00\x00\x00"), got[8:16])

	assert.Empty(t, idx.Lookup([]byte("ann")))
	assert.ElementsMatch(t, []heap.Rid{rid}, idx.Lookup([]byte("zoe")))
}

func TestUpdateNonStringAssignmentToStringColumnFails(t *testing.T) {
	tm := usersSchema()
	hf := newHeapFile(t, 16, 4)
	_, err := hf.Insert(encodeUser(1, 20, "ann"))
	require.NoError(t, err)

	scan := exec.NewSeqScan(tm, hf, exec.Predicate{})
	upd := exec.NewUpdate(tm, hf, scan, []exec.Assignment{{Column: "name", Value: int32(7)}}, nil, "", nil)

	require.NoError(t, upd.Begin())
	_, err = upd.Advance()
	assert.True(t, errs.Is(err, errs.IncompatibleType))
}
