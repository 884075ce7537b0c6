// Package disk implements the page-granular, named-file persistence
// layer (spec.md §4.1, component C1). It knows nothing about records,
// slots, or bitmaps — it reads and writes whole pages by number and
// appends to one shared log file.
//
// Grounded on the teacher's disk/manager.go for file lifecycle and
// page I/O, and on Revolution1-sidb's db.go/sys.go for page-size
// constants, preallocation on create, and pkg/errors-wrapped syscall
// failures (SPEC_FULL.md §4.1).
package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/jmcarbo/reldb/internal/config"
	"github.com/jmcarbo/reldb/internal/errs"
	"github.com/jmcarbo/reldb/internal/logcodec"
)

// Fd is an opaque open-file handle, analogous to a Unix file
// descriptor: stable for the lifetime of one open_file/close_file
// pairing, never reused across files while open.
type Fd int64

const noFd Fd = -1

type openFile struct {
	path    string
	f       *os.File
	nextPg  int64 // atomic: next logical page number (fetch-and-add)
	fd      Fd
}

// Manager is the disk manager described in spec.md §4.1.
type Manager struct {
	pageSize int

	mu      sync.Mutex
	byPath  map[string]Fd
	byFd    map[Fd]*openFile
	nextFd  int64

	logMu   sync.Mutex
	logFile *os.File
	logPath string
	compAlg config.CompressAlgorithm
}

// New constructs a Manager. logPath is the single shared append-only
// log file (catalog.New passes `<basePath>/LOG`, one log shared by
// every database under that base path); it is opened lazily on first
// write_log/read_log call via EnsureLog.
func New(pageSize int, logPath string, compression config.CompressAlgorithm) *Manager {
	if pageSize <= 0 {
		pageSize = config.PageSize
	}
	return &Manager{
		pageSize: pageSize,
		byPath:   make(map[string]Fd),
		byFd:     make(map[Fd]*openFile),
		logPath:  logPath,
		compAlg:  compression,
	}
}

// PageSize returns the configured page size.
func (m *Manager) PageSize() int { return m.pageSize }

// CreateFile creates a new named file, preallocated to 4*PAGE_SIZE
// bytes (page 0 plus headroom), per spec.md §4.1. Parent directories
// are created with mode 0755. Any error after the file is created
// causes the partial file to be removed.
func (m *Manager) CreateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errs.New(errs.FileExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.IoError, err, "mkdir parent")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errs.Wrap(errs.IoError, err, "create file")
	}
	prealloc := make([]byte, 4*m.pageSize)
	if _, err := f.WriteAt(prealloc, 0); err != nil {
		f.Close()
		os.Remove(path)
		return errs.Wrap(errs.IoError, err, "preallocate file")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return errs.Wrap(errs.IoError, err, "close after create")
	}
	logrus.WithField("path", path).Debug("disk: created file")
	return nil
}

// DestroyFile removes a closed file.
func (m *Manager) DestroyFile(path string) error {
	m.mu.Lock()
	_, open := m.byPath[path]
	m.mu.Unlock()
	if open {
		return errs.New(errs.FileStillOpen, path)
	}
	if _, err := os.Stat(path); err != nil {
		return errs.New(errs.FileNotFound, path)
	}
	if err := os.Remove(path); err != nil {
		return errs.Wrap(errs.IoError, err, "remove file")
	}
	return nil
}

// OpenFile opens path for read-write access, idempotently: a second
// call for the same path returns the existing Fd. The per-fd page
// counter is reset to 0 on a fresh open.
func (m *Manager) OpenFile(path string) (Fd, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fd, ok := m.byPath[path]; ok {
		return fd, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return noFd, errs.New(errs.FileNotFound, path)
		}
		return noFd, errs.Wrap(errs.IoError, err, "open file")
	}
	m.nextFd++
	fd := Fd(m.nextFd)
	of := &openFile{path: path, f: f, fd: fd}
	m.byPath[path] = fd
	m.byFd[fd] = of
	logrus.WithFields(logrus.Fields{"path": path, "fd": fd}).Debug("disk: opened file")
	return fd, nil
}

// CloseFile deregisters fd.
func (m *Manager) CloseFile(fd Fd) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.byFd[fd]
	if !ok {
		return errs.New(errs.FileNotOpen, "")
	}
	err := of.f.Close()
	delete(m.byFd, fd)
	delete(m.byPath, of.path)
	if err != nil {
		return errs.Wrap(errs.IoError, err, "close file")
	}
	return nil
}

func (m *Manager) lookup(fd Fd) (*openFile, error) {
	m.mu.Lock()
	of, ok := m.byFd[fd]
	m.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.FileNotOpen, "")
	}
	return of, nil
}

// ReadPage reads one page at page_no*PAGE_SIZE into buf[:n]. A short
// read whose bytes_read == 0 (past EOF) zero-fills buf and succeeds;
// any other short read is IoError.
func (m *Manager) ReadPage(fd Fd, pageNo int64, buf []byte) error {
	of, err := m.lookup(fd)
	if err != nil {
		return err
	}
	n := m.pageSize
	if len(buf) < n {
		return errs.New(errs.Internal, "buffer smaller than page size")
	}
	off := pageNo * int64(m.pageSize)
	read, err := of.f.ReadAt(buf[:n], off)
	if err != nil && err != io.EOF {
		return errs.Wrap(errs.IoError, err, "read_page")
	}
	if read == 0 {
		for i := range buf[:n] {
			buf[i] = 0
		}
		return nil
	}
	if read != n {
		return errs.Newf(errs.IoError, "short read: got %d want %d", read, n)
	}
	return nil
}

// WritePage writes buf[:n] at page_no*PAGE_SIZE.
func (m *Manager) WritePage(fd Fd, pageNo int64, buf []byte) error {
	of, err := m.lookup(fd)
	if err != nil {
		return err
	}
	n := m.pageSize
	if len(buf) < n {
		return errs.New(errs.Internal, "buffer smaller than page size")
	}
	off := pageNo * int64(m.pageSize)
	written, err := of.f.WriteAt(buf[:n], off)
	if err != nil {
		if isNoSpace(err) {
			return errs.Wrap(errs.NoSpace, err, "write_page")
		}
		return errs.Wrap(errs.IoError, err, "write_page")
	}
	if written != n {
		return errs.Newf(errs.IoError, "short write: wrote %d want %d", written, n)
	}
	return nil
}

// AllocatePage returns the next logical page number for fd, atomically
// under concurrent callers (fetch-and-add).
func (m *Manager) AllocatePage(fd Fd) (int64, error) {
	of, err := m.lookup(fd)
	if err != nil {
		return 0, err
	}
	return atomic.AddInt64(&of.nextPg, 1) - 1, nil
}

// DeallocatePage is a logical no-op: the file never shrinks (I5).
func (m *Manager) DeallocatePage(int64) error { return nil }

// EnsureLog opens (creating if needed) the shared log file.
func (m *Manager) EnsureLog() error {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if m.logFile != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.logPath), 0o755); err != nil {
		return errs.Wrap(errs.IoError, err, "mkdir log parent")
	}
	f, err := os.OpenFile(m.logPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errs.Wrap(errs.IoError, err, "open log")
	}
	m.logFile = f
	return nil
}

// WriteLog atomically appends buf to the log file, optionally framed
// with the configured compression algorithm (SPEC_FULL.md §1b).
func (m *Manager) WriteLog(buf []byte) error {
	if err := m.EnsureLog(); err != nil {
		return err
	}
	framed, err := logcodec.Encode(m.compAlg, buf)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encode log frame")
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if _, err := m.logFile.Seek(0, io.SeekEnd); err != nil {
		return errs.Wrap(errs.IoError, err, "seek log end")
	}
	if _, err := m.logFile.Write(framed); err != nil {
		return errs.Wrap(errs.IoError, err, "write_log")
	}
	return nil
}

// ReadLog returns min(size, file_size-offset) bytes from the log file
// starting at offset, or (nil, nil) if offset exceeds the file size. The
// returned bytes are the raw (still-framed) log bytes; use
// logcodec.Decode to recover a single record appended by WriteLog.
func (m *Manager) ReadLog(offset int64, size int) ([]byte, error) {
	if err := m.EnsureLog(); err != nil {
		return nil, err
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()
	info, err := m.logFile.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.IoError, err, "stat log")
	}
	if offset > info.Size() {
		return nil, nil
	}
	n := info.Size() - offset
	if int64(size) < n {
		n = int64(size)
	}
	buf := make([]byte, n)
	if _, err := m.logFile.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.IoError, err, "read_log")
	}
	return buf, nil
}

// CloseLog closes the shared log file if open.
func (m *Manager) CloseLog() error {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if m.logFile == nil {
		return nil
	}
	err := m.logFile.Close()
	m.logFile = nil
	if err != nil {
		return errs.Wrap(errs.IoError, err, "close log")
	}
	return nil
}
