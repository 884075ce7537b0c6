// Package heap implements the record file (component C3 of spec.md
// §4.3): fixed-width slotted-page storage with bitmap slot allocation
// and an intrusive free-page list threaded through page headers.
//
// Grounded on the teacher's relation.RelationManager
// (InsertRecord/DeleteRecord/GetAllRecords/ScanRecords, free-list
// pointers kept in the header page), generalized from the teacher's
// two-list (with-space / full) design to this spec's single
// intrusive free-list keyed off page_header.next_free_page_no, and
// from the teacher's variable-size Record{Values []string} to this
// spec's fixed-width byte-slot model (spec.md §3 invariants I1-I4).
package heap

import (
	"encoding/binary"
	"sync"

	"github.com/jmcarbo/reldb/internal/buffer"
	"github.com/jmcarbo/reldb/internal/disk"
	"github.com/jmcarbo/reldb/internal/errs"
	"github.com/jmcarbo/reldb/internal/page"
)

// Rid addresses one record: (page number, slot number). NoPage/NoSlot
// are the spec's -1 sentinels for "no page"/"no slot".
type Rid struct {
	PageNo int32
	SlotNo int32
}

const NoPage int32 = -1
const NoSlot int32 = -1

// fileHeaderSize matches page 0's layout:
//
//	[0:4]   record_size
//	[4:8]   N (records per page)
//	[8:12]  B (bitmap bytes per page)
//	[12:16] num_pages (data pages, excludes page 0)
//	[16:20] first_free_page_no
const fileHeaderSize = 20

// File is one open record file: page 0 carries the fixed layout
// parameters and the free-list head, pages 1..num_pages are data
// pages wrapped by page.Handle.
type File struct {
	fd   disk.Fd
	pool *buffer.Pool

	mu         sync.Mutex
	recordSize int
	numSlots   int // N
	bitmapSize int // B
	numPages   int32
	firstFree  int32
}

// Create initializes a brand new record file: allocates page 0 and
// writes the file header with zero data pages and an empty free list
// (spec.md §4.1 "create_file").
func Create(fd disk.Fd, pool *buffer.Pool, recordSize, numSlots int) (*File, error) {
	f := &File{
		fd:         fd,
		pool:       pool,
		recordSize: recordSize,
		numSlots:   numSlots,
		bitmapSize: page.BitmapSize(numSlots),
		numPages:   0,
		firstFree:  NoPage,
	}
	fr, err := pool.NewPage(fd, 0)
	if err != nil {
		return nil, err
	}
	f.writeFileHeader(fr.Data)
	if err := pool.Unpin(fd, 0, true); err != nil {
		return nil, err
	}
	return f, nil
}

// Open reads an existing file's page 0 header and returns a File
// ready to serve get/insert/update/delete/scan.
func Open(fd disk.Fd, pool *buffer.Pool) (*File, error) {
	fr, err := pool.FetchPage(fd, 0)
	if err != nil {
		return nil, err
	}
	f := &File{fd: fd, pool: pool}
	f.readFileHeader(fr.Data)
	if err := pool.Unpin(fd, 0, false); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) writeFileHeader(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.recordSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.numSlots))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.bitmapSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(f.numPages))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(f.firstFree))
}

func (f *File) readFileHeader(buf []byte) {
	f.recordSize = int(binary.LittleEndian.Uint32(buf[0:4]))
	f.numSlots = int(binary.LittleEndian.Uint32(buf[4:8]))
	f.bitmapSize = int(binary.LittleEndian.Uint32(buf[8:12]))
	f.numPages = int32(binary.LittleEndian.Uint32(buf[12:16]))
	f.firstFree = int32(binary.LittleEndian.Uint32(buf[16:20]))
}

func (f *File) flushFileHeader() error {
	fr, err := f.pool.FetchPage(f.fd, 0)
	if err != nil {
		return err
	}
	f.writeFileHeader(fr.Data)
	return f.pool.Unpin(f.fd, 0, true)
}

// fetchData pins data page pageNo (1-based; page 0 is the file header,
// so data page k lives at physical page k) and wraps it in a
// page.Handle, raising PageNotExist when pageNo is outside
// 1..num_pages. The caller must unpin it.
func (f *File) fetchData(pageNo int32) (*page.Handle, error) {
	if pageNo < 1 || pageNo > f.numPages {
		return nil, errs.Newf(errs.PageNotExist, "fetch_page: page %d out of range (num_pages=%d)", pageNo, f.numPages)
	}
	fr, err := f.pool.FetchPage(f.fd, int64(pageNo))
	if err != nil {
		return nil, err
	}
	return page.Wrap(fr.Data, f.numSlots, f.bitmapSize, f.recordSize), nil
}

func (f *File) unpinData(pageNo int32, dirty bool) error {
	return f.pool.Unpin(f.fd, int64(pageNo), dirty)
}

// createNewPage allocates a fresh physical page, initializes an empty
// page header and bitmap, and links it onto the head of the free
// list, returning its page number (spec.md §4.3 "create_new_page").
func (f *File) createNewPage() (int32, error) {
	f.numPages++
	pageNo := f.numPages

	fr, err := f.pool.NewPage(f.fd, int64(pageNo))
	if err != nil {
		f.numPages--
		return NoPage, err
	}
	h := page.Wrap(fr.Data, f.numSlots, f.bitmapSize, f.recordSize)
	h.SetHeader(f.firstFree, 0)
	if err := f.pool.Unpin(f.fd, int64(pageNo), true); err != nil {
		return NoPage, err
	}

	f.firstFree = pageNo
	if err := f.flushFileHeader(); err != nil {
		return NoPage, err
	}
	return pageNo, nil
}

// acquireFreePage returns the head of the free list, creating a new
// page first if the list is empty (spec.md §4.3 "acquire_free_page").
func (f *File) acquireFreePage() (int32, error) {
	if f.firstFree == NoPage {
		return f.createNewPage()
	}
	return f.firstFree, nil
}

// unlinkFromFreeList removes pageNo from the free list when it has
// become full (PartiallyFull -> Full transition, spec.md §4.3
// free-list state machine). The hot Insert path always removes the
// head; InsertAt's recovery path can target any page already on the
// list, so this walks from the head when pageNo isn't it.
func (f *File) unlinkFromFreeList(pageNo int32, h *page.Handle) error {
	if f.firstFree == pageNo {
		f.firstFree = h.NextFreePageNo()
		return f.flushFileHeader()
	}

	prev := f.firstFree
	for prev != NoPage {
		ph, err := f.fetchData(prev)
		if err != nil {
			return err
		}
		next := ph.NextFreePageNo()
		if next == pageNo {
			ph.SetHeader(h.NextFreePageNo(), ph.NumRecords())
			return f.unpinData(prev, true)
		}
		if err := f.unpinData(prev, false); err != nil {
			return err
		}
		prev = next
	}
	return errs.Newf(errs.Internal, "unlinkFromFreeList: page %d not found on free list", pageNo)
}

// relinkIntoFreeList pushes pageNo back onto the head of the free
// list (Full -> PartiallyFull, or creation of the first free slot on
// an otherwise untracked page).
func (f *File) relinkIntoFreeList(pageNo int32, h *page.Handle) error {
	h.SetHeader(f.firstFree, h.NumRecords())
	f.firstFree = pageNo
	return f.flushFileHeader()
}

// Insert stores buf (exactly recordSize bytes) in the first available
// slot, creating a page if the free list is empty, and returns the
// assigned Rid (spec.md §4.3 "insert_record" without-Rid form).
func (f *File) Insert(buf []byte) (Rid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(buf) != f.recordSize {
		return Rid{}, errs.Newf(errs.Internal, "insert: buf length %d != record size %d", len(buf), f.recordSize)
	}

	pageNo, err := f.acquireFreePage()
	if err != nil {
		return Rid{}, err
	}
	h, err := f.fetchData(pageNo)
	if err != nil {
		return Rid{}, err
	}

	bm := h.Bitmap()
	slot := page.FirstClearBit(bm, f.numSlots)
	if slot == f.numSlots {
		_ = f.unpinData(pageNo, false)
		return Rid{}, errs.New(errs.Internal, "insert: free-list page reports no free slot")
	}

	page.SetBit(bm, slot)
	copy(h.Slot(slot), buf)
	numRecords := h.NumRecords() + 1
	h.SetHeader(h.NextFreePageNo(), numRecords)

	becameFull := int(numRecords) == f.numSlots
	if becameFull {
		if err := f.unlinkFromFreeList(pageNo, h); err != nil {
			_ = f.unpinData(pageNo, true)
			return Rid{}, err
		}
	}
	if err := f.unpinData(pageNo, true); err != nil {
		return Rid{}, err
	}
	return Rid{PageNo: pageNo, SlotNo: int32(slot)}, nil
}

// InsertAt stores buf at an explicit, currently-unoccupied Rid
// (recovery / redo path). Inserting into an already-occupied slot
// raises SlotOccupied rather than the RecordNotFound the original
// design used (an Open Question resolved in favor of a dedicated
// error kind, since "slot occupied" and "record absent" are not the
// same failure).
func (f *File) InsertAt(rid Rid, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(buf) != f.recordSize {
		return errs.Newf(errs.Internal, "insertAt: buf length %d != record size %d", len(buf), f.recordSize)
	}
	if rid.PageNo < 1 || rid.PageNo > f.numPages {
		return errs.Newf(errs.RecordNotFound, "insertAt: page %d out of range", rid.PageNo)
	}

	for f.numPages < rid.PageNo {
		if _, err := f.createNewPage(); err != nil {
			return err
		}
	}

	h, err := f.fetchData(rid.PageNo)
	if err != nil {
		return err
	}
	bm := h.Bitmap()
	if page.BitSet(bm, int(rid.SlotNo)) {
		_ = f.unpinData(rid.PageNo, false)
		return errs.Newf(errs.SlotOccupied, "insertAt: slot %d on page %d already occupied", rid.SlotNo, rid.PageNo)
	}

	wasEmpty := h.NumRecords() == 0
	wasOnFreeList := f.pageIsOnFreeList(rid.PageNo, h)

	page.SetBit(bm, int(rid.SlotNo))
	copy(h.Slot(int(rid.SlotNo)), buf)
	numRecords := h.NumRecords() + 1
	h.SetHeader(h.NextFreePageNo(), numRecords)

	becameFull := int(numRecords) == f.numSlots
	var ferr error
	switch {
	case becameFull && wasOnFreeList:
		ferr = f.unlinkFromFreeList(rid.PageNo, h)
	case wasEmpty && !wasOnFreeList:
		ferr = f.relinkIntoFreeList(rid.PageNo, h)
	}
	if ferr != nil {
		_ = f.unpinData(rid.PageNo, true)
		return ferr
	}
	return f.unpinData(rid.PageNo, true)
}

// pageIsOnFreeList walks the free list to decide membership. Record
// files keep at most a handful of pages resident during normal
// operation so this linear walk is cheap in practice; it runs only on
// the InsertAt recovery path, never on the hot Insert path.
func (f *File) pageIsOnFreeList(pageNo int32, current *page.Handle) bool {
	next := f.firstFree
	for next != NoPage {
		if next == pageNo {
			return true
		}
		h, err := f.fetchData(next)
		if err != nil {
			return false
		}
		n := h.NextFreePageNo()
		_ = f.unpinData(next, false)
		next = n
	}
	return false
}

// Get reads the record at rid into a fresh buffer.
func (f *File) Get(rid Rid) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.fetchData(rid.PageNo)
	if err != nil {
		return nil, err
	}
	defer f.unpinData(rid.PageNo, false)

	if int(rid.SlotNo) < 0 || int(rid.SlotNo) >= f.numSlots || !page.BitSet(h.Bitmap(), int(rid.SlotNo)) {
		return nil, errs.Newf(errs.RecordNotFound, "get: rid %+v not occupied", rid)
	}
	out := make([]byte, f.recordSize)
	copy(out, h.Slot(int(rid.SlotNo)))
	return out, nil
}

// Update overwrites the record at rid in place; it never changes a
// page's occupancy or free-list membership.
func (f *File) Update(rid Rid, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(buf) != f.recordSize {
		return errs.Newf(errs.Internal, "update: buf length %d != record size %d", len(buf), f.recordSize)
	}
	h, err := f.fetchData(rid.PageNo)
	if err != nil {
		return err
	}
	if int(rid.SlotNo) < 0 || int(rid.SlotNo) >= f.numSlots || !page.BitSet(h.Bitmap(), int(rid.SlotNo)) {
		_ = f.unpinData(rid.PageNo, false)
		return errs.Newf(errs.RecordNotFound, "update: rid %+v not occupied", rid)
	}
	copy(h.Slot(int(rid.SlotNo)), buf)
	return f.unpinData(rid.PageNo, true)
}

// Delete clears the slot at rid and, per the free-list state machine,
// relinks the page onto the free list if it had been full
// (spec.md §4.3 Full -> PartiallyFull transition).
func (f *File) Delete(rid Rid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.fetchData(rid.PageNo)
	if err != nil {
		return err
	}
	bm := h.Bitmap()
	if int(rid.SlotNo) < 0 || int(rid.SlotNo) >= f.numSlots || !page.BitSet(bm, int(rid.SlotNo)) {
		_ = f.unpinData(rid.PageNo, false)
		return errs.Newf(errs.RecordNotFound, "delete: rid %+v not occupied", rid)
	}

	wasFull := int(h.NumRecords()) == f.numSlots
	page.ClearBit(bm, int(rid.SlotNo))
	numRecords := h.NumRecords() - 1
	h.SetHeader(h.NextFreePageNo(), numRecords)

	var ferr error
	if wasFull {
		ferr = f.relinkIntoFreeList(rid.PageNo, h)
	}
	if ferr != nil {
		_ = f.unpinData(rid.PageNo, true)
		return ferr
	}
	return f.unpinData(rid.PageNo, true)
}

// NumDataPages returns the number of data pages currently allocated
// (excludes the page-0 file header).
func (f *File) NumDataPages() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// RecordSize returns the file's fixed record width.
func (f *File) RecordSize() int {
	return f.recordSize
}

// NumSlots returns N, the number of slots per page.
func (f *File) NumSlots() int {
	return f.numSlots
}

// Scanner iterates every live record in page/slot order, implementing
// the pull-model advance() state machine of spec.md §4.3.
type Scanner struct {
	f       *File
	pageNo  int32
	slotNo  int32
	started bool
	ended   bool
	cur     Rid
	curBuf  []byte
}

// NewScanner creates a scanner positioned before the first record.
func (f *File) NewScanner() *Scanner {
	return &Scanner{f: f, pageNo: 1, slotNo: NoSlot}
}

// Advance moves the scanner to the next live record, returning false
// once the scan is exhausted.
func (s *Scanner) Advance() (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.started = true

	for s.pageNo <= s.f.numPages {
		h, err := s.f.fetchData(s.pageNo)
		if err != nil {
			return false, err
		}
		next := page.NextSetBit(h.Bitmap(), s.f.numSlots, int(s.slotNo))
		if next == s.f.numSlots {
			if err := s.f.unpinData(s.pageNo, false); err != nil {
				return false, err
			}
			s.pageNo++
			s.slotNo = NoSlot
			continue
		}
		buf := make([]byte, s.f.recordSize)
		copy(buf, h.Slot(next))
		if err := s.f.unpinData(s.pageNo, false); err != nil {
			return false, err
		}
		s.cur = Rid{PageNo: s.pageNo, SlotNo: int32(next)}
		s.curBuf = buf
		s.slotNo = int32(next)
		return true, nil
	}
	s.ended = true
	return false, nil
}

// IsEnd reports whether the scan has been exhausted.
func (s *Scanner) IsEnd() bool { return s.ended }

// NextRecord returns the bytes of the record the scanner is currently
// positioned on.
func (s *Scanner) NextRecord() []byte { return s.curBuf }

// Rid returns the Rid of the record the scanner is currently
// positioned on.
func (s *Scanner) Rid() Rid { return s.cur }
