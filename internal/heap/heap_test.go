package heap_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcarbo/reldb/internal/buffer"
	"github.com/jmcarbo/reldb/internal/config"
	"github.com/jmcarbo/reldb/internal/disk"
	"github.com/jmcarbo/reldb/internal/errs"
	"github.com/jmcarbo/reldb/internal/heap"
)

func newFile(t *testing.T, recordSize, numSlots int) *heap.File {
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

func rec(recordSize int, b byte) []byte {
	buf := make([]byte, recordSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestInsertGetRoundTrip(t *testing.T) {
	f := newFile(t, 8, 4)
	rid, err := f.Insert(rec(8, 'a'))
	require.NoError(t, err)
	assert.EqualValues(t, 1, rid.PageNo)
	assert.EqualValues(t, 0, rid.SlotNo)

	got, err := f.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, rec(8, 'a'), got)
}

func TestInsertFillsPageBeforeAllocatingNext(t *testing.T) {
	f := newFile(t, 4, 2)
	r1, err := f.Insert(rec(4, '1'))
	require.NoError(t, err)
	r2, err := f.Insert(rec(4, '2'))
	require.NoError(t, err)
	assert.Equal(t, r1.PageNo, r2.PageNo)
	assert.EqualValues(t, 1, f.NumDataPages())

	r3, err := f.Insert(rec(4, '3'))
	require.NoError(t, err)
	assert.EqualValues(t, 2, r3.PageNo)
	assert.EqualValues(t, 2, f.NumDataPages())
}

func TestSingleSlotPageEdgeCase(t *testing.T) {
	f := newFile(t, 4, 1)
	r1, err := f.Insert(rec(4, 'x'))
	require.NoError(t, err)
	assert.EqualValues(t, 1, r1.PageNo)
	assert.EqualValues(t, 0, r1.SlotNo)
	assert.EqualValues(t, 1, f.NumDataPages())

	r2, err := f.Insert(rec(4, 'y'))
	require.NoError(t, err)
	assert.EqualValues(t, 2, r2.PageNo)

	require.NoError(t, f.Delete(r1))
	r3, err := f.Insert(rec(4, 'z'))
	require.NoError(t, err)
	assert.EqualValues(t, 1, r3.PageNo)
	assert.EqualValues(t, 0, r3.SlotNo)
}

func TestDeleteThenReinsertReusesSlot(t *testing.T) {
	f := newFile(t, 4, 2)
	r1, err := f.Insert(rec(4, '1'))
	require.NoError(t, err)
	_, err = f.Insert(rec(4, '2'))
	require.NoError(t, err)

	require.NoError(t, f.Delete(r1))
	_, err = f.Get(r1)
	assert.True(t, errs.Is(err, errs.RecordNotFound))

	r3, err := f.Insert(rec(4, '3'))
	require.NoError(t, err)
	assert.Equal(t, r1, r3)
}

func TestFullPageLeavesFreeListThenReturnsOnDelete(t *testing.T) {
	f := newFile(t, 4, 2)
	r1, err := f.Insert(rec(4, 'a'))
	require.NoError(t, err)
	_, err = f.Insert(rec(4, 'b'))
	require.NoError(t, err)

	r3, err := f.Insert(rec(4, 'c'))
	require.NoError(t, err)
	assert.EqualValues(t, 2, r3.PageNo)

	require.NoError(t, f.Delete(r1))
	r4, err := f.Insert(rec(4, 'd'))
	require.NoError(t, err)
	assert.EqualValues(t, 1, r4.PageNo)
}

func TestInsertAtOccupiedSlotFails(t *testing.T) {
	f := newFile(t, 4, 2)
	rid, err := f.Insert(rec(4, 'a'))
	require.NoError(t, err)
	err = f.InsertAt(rid, rec(4, 'b'))
	assert.True(t, errs.Is(err, errs.SlotOccupied))
}

func TestInsertAtVacantSlotSucceeds(t *testing.T) {
	f := newFile(t, 4, 2)
	rid, err := f.Insert(rec(4, 'a'))
	require.NoError(t, err)
	require.NoError(t, f.Delete(rid))
	require.NoError(t, f.InsertAt(rid, rec(4, 'z')))

	got, err := f.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, rec(4, 'z'), got)
}

func TestUpdateInPlace(t *testing.T) {
	f := newFile(t, 4, 2)
	rid, err := f.Insert(rec(4, 'a'))
	require.NoError(t, err)
	require.NoError(t, f.Update(rid, rec(4, 'b')))
	got, err := f.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, rec(4, 'b'), got)
}

func TestUpdateVacantSlotFails(t *testing.T) {
	f := newFile(t, 4, 2)
	rid, err := f.Insert(rec(4, 'a'))
	require.NoError(t, err)
	require.NoError(t, f.Delete(rid))
	err = f.Update(rid, rec(4, 'b'))
	assert.True(t, errs.Is(err, errs.RecordNotFound))
}

func TestScannerVisitsAllLiveRecordsInOrder(t *testing.T) {
	f := newFile(t, 4, 2)
	var rids []heap.Rid
	for _, b := range []byte{'a', 'b', 'c', 'd', 'e'} {
		rid, err := f.Insert(rec(4, b))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	require.NoError(t, f.Delete(rids[2]))

	sc := f.NewScanner()
	var seen []heap.Rid
	for {
		ok, err := sc.Advance()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, sc.Rid())
	}
	assert.True(t, sc.IsEnd())
	assert.Len(t, seen, 4)
	for _, r := range seen {
		assert.NotEqual(t, rids[2], r)
	}
}

func TestScannerOnEmptyFileEndsImmediately(t *testing.T) {
	f := newFile(t, 4, 2)
	sc := f.NewScanner()
	ok, err := sc.Advance()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, sc.IsEnd())
}

func TestGetOutOfRangePageFails(t *testing.T) {
	f := newFile(t, 4, 2)
	_, err := f.Get(heap.Rid{PageNo: 99, SlotNo: 0})
	assert.True(t, errs.Is(err, errs.PageNotExist))
}

func TestReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	dm := disk.New(4096, filepath.Join(dir, "LOG"), config.CompressNone)
	path := filepath.Join(dir, "tbl")
	require.NoError(t, dm.CreateFile(path))
	fd, err := dm.OpenFile(path)
	require.NoError(t, err)
	pool := buffer.New(dm, 8, 4096, buffer.PolicyLRU)

	f, err := heap.Create(fd, pool, 4, 2)
	require.NoError(t, err)
	rid, err := f.Insert(rec(4, 'q'))
	require.NoError(t, err)
	require.NoError(t, pool.FlushAll())

	f2, err := heap.Open(fd, pool)
	require.NoError(t, err)
	got, err := f2.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, rec(4, 'q'), got)
}
