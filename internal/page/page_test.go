package page_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmcarbo/reldb/internal/page"
)

func TestHeaderRoundTrip(t *testing.T) {
	n := 10
	bmSize := page.BitmapSize(n)
	recSize := 4
	buf := make([]byte, page.HeaderSize+bmSize+n*recSize)
	h := page.Wrap(buf, n, bmSize, recSize)
	h.SetHeader(7, 3)
	assert.EqualValues(t, 7, h.NextFreePageNo())
	assert.EqualValues(t, 3, h.NumRecords())
}

func TestBitmapSetClearPopCount(t *testing.T) {
	n := 17
	bm := make([]byte, page.BitmapSize(n))
	assert.Equal(t, 3, len(bm))
	page.SetBit(bm, 0)
	page.SetBit(bm, 8)
	page.SetBit(bm, 16)
	assert.Equal(t, 3, page.PopCount(bm, n))
	assert.True(t, page.BitSet(bm, 8))
	page.ClearBit(bm, 8)
	assert.False(t, page.BitSet(bm, 8))
	assert.Equal(t, 2, page.PopCount(bm, n))
}

func TestFirstClearBit(t *testing.T) {
	n := 8
	bm := make([]byte, page.BitmapSize(n))
	for i := 0; i < 3; i++ {
		page.SetBit(bm, i)
	}
	assert.Equal(t, 3, page.FirstClearBit(bm, n))
	for i := 0; i < n; i++ {
		page.SetBit(bm, i)
	}
	assert.Equal(t, n, page.FirstClearBit(bm, n))
}

func TestNextSetBit(t *testing.T) {
	n := 10
	bm := make([]byte, page.BitmapSize(n))
	page.SetBit(bm, 2)
	page.SetBit(bm, 5)
	assert.Equal(t, 2, page.NextSetBit(bm, n, -1))
	assert.Equal(t, 5, page.NextSetBit(bm, n, 2))
	assert.Equal(t, n, page.NextSetBit(bm, n, 5))
}

func TestSlotAddressing(t *testing.T) {
	n := 4
	recSize := 3
	bmSize := page.BitmapSize(n)
	buf := make([]byte, page.HeaderSize+bmSize+n*recSize)
	h := page.Wrap(buf, n, bmSize, recSize)
	copy(h.Slot(0), []byte{1, 2, 3})
	copy(h.Slot(1), []byte{4, 5, 6})
	assert.Equal(t, []byte{1, 2, 3}, h.Slot(0))
	assert.Equal(t, []byte{4, 5, 6}, h.Slot(1))
}
