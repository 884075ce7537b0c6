package catalog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jmcarbo/reldb/internal/buffer"
	"github.com/jmcarbo/reldb/internal/config"
	"github.com/jmcarbo/reldb/internal/disk"
	"github.com/jmcarbo/reldb/internal/errs"
	"github.com/jmcarbo/reldb/internal/heap"
)

const metaFileName = "DB_META"

// Manager is the catalog / storage manager (C4). basePath is resolved
// to an absolute path once at construction and every subsequent
// operation addresses files beneath it explicitly -- never via
// os.Chdir, per spec.md §9's REDESIGN FLAG.
type Manager struct {
	basePath string
	dm       *disk.Manager
	pool     *buffer.Pool
	cfg      *config.Config

	mu      sync.Mutex
	dbName  string
	dbDir   string
	tables  map[string]*TabMeta
	open    map[string]*heap.File
	isOpen  bool
}

// New constructs a Manager rooted at the given absolute base path.
func New(cfg *config.Config) (*Manager, error) {
	base, err := filepath.Abs(cfg.DBPath)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "resolve base path")
	}
	dm := disk.New(cfg.PageSize, filepath.Join(base, "LOG"), cfg.LogCompression)
	pool := buffer.New(dm, cfg.BufferPoolFrames, cfg.PageSize, buffer.Policy(cfg.BufferPoolPolicy))
	return &Manager{
		basePath: base,
		dm:       dm,
		pool:     pool,
		cfg:      cfg,
		tables:   make(map[string]*TabMeta),
		open:     make(map[string]*heap.File),
	}, nil
}

func (m *Manager) requireOpen() error {
	if !m.isOpen {
		return errs.New(errs.DatabaseNotFound, "no database is open")
	}
	return nil
}

// CreateDB makes a new database directory beneath basePath, with an
// empty DB_META.
func (m *Manager) CreateDB(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := filepath.Join(m.basePath, name)
	if _, err := os.Stat(dir); err == nil {
		return errs.New(errs.DatabaseExists, name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.IoError, err, "mkdir database")
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), []byte(encodeMeta(name, nil)), 0o644); err != nil {
		return errs.Wrap(errs.IoError, err, "write initial DB_META")
	}
	logrus.WithField("db", name).Info("catalog: created database")
	return nil
}

// DropDB removes a closed database directory and all its table files.
func (m *Manager) DropDB(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isOpen && m.dbName == name {
		return errs.New(errs.DatabaseExists, "database is open, close it first")
	}
	dir := filepath.Join(m.basePath, name)
	if _, err := os.Stat(dir); err != nil {
		return errs.New(errs.DatabaseNotFound, name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(errs.IoError, err, "remove database directory")
	}
	logrus.WithField("db", name).Info("catalog: dropped database")
	return nil
}

// OpenDB loads DB_META and opens every table's heap file.
func (m *Manager) OpenDB(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isOpen {
		return errs.New(errs.DatabaseExists, "a database is already open; close it first")
	}
	dir := filepath.Join(m.basePath, name)
	raw, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.DatabaseNotFound, name)
		}
		return errs.Wrap(errs.IoError, err, "read DB_META")
	}
	dbName, tables, err := decodeMeta(string(raw))
	if err != nil {
		return err
	}

	open := make(map[string]*heap.File, len(tables))
	for tname := range tables {
		fd, err := m.dm.OpenFile(filepath.Join(dir, tname))
		if err != nil {
			return err
		}
		hf, err := heap.Open(fd, m.pool)
		if err != nil {
			return err
		}
		open[tname] = hf
	}

	m.dbName = dbName
	m.dbDir = dir
	m.tables = tables
	m.open = open
	m.isOpen = true
	logrus.WithField("db", name).Info("catalog: opened database")
	return nil
}

// CloseDB flushes the buffer pool and closes every table's file.
func (m *Manager) CloseDB() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	if err := m.pool.FlushAll(); err != nil {
		return err
	}
	for tname := range m.open {
		fd, err := m.dm.OpenFile(filepath.Join(m.dbDir, tname))
		if err != nil {
			continue
		}
		if err := m.dm.CloseFile(fd); err != nil {
			return err
		}
	}
	name := m.dbName
	m.isOpen = false
	m.dbName = ""
	m.dbDir = ""
	m.tables = make(map[string]*TabMeta)
	m.open = make(map[string]*heap.File)
	logrus.WithField("db", name).Info("catalog: closed database")
	return nil
}

// CreateTable allocates a new heap file for tm and records its schema
// in DB_META (rewritten atomically via temp-file write and rename).
func (m *Manager) CreateTable(tm *TabMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	if _, exists := m.tables[tm.Name]; exists {
		return errs.New(errs.TableExists, tm.Name)
	}

	path := filepath.Join(m.dbDir, tm.Name)
	if err := m.dm.CreateFile(path); err != nil {
		return err
	}
	fd, err := m.dm.OpenFile(path)
	if err != nil {
		return err
	}
	numSlots := recordsPerPage(m.cfg.PageSize, tm.RecordSize)
	hf, err := heap.Create(fd, m.pool, tm.RecordSize, numSlots)
	if err != nil {
		return err
	}

	m.tables[tm.Name] = tm
	m.open[tm.Name] = hf
	if err := m.rewriteMeta(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"db": m.dbName, "table": tm.Name}).Info("catalog: created table")
	return nil
}

// DropTable removes a table's heap file and its schema entry.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	if _, exists := m.tables[name]; !exists {
		return errs.New(errs.TableNotFound, name)
	}
	path := filepath.Join(m.dbDir, name)
	fd, err := m.dm.OpenFile(path)
	if err == nil {
		_ = m.dm.CloseFile(fd)
	}
	if err := m.dm.DestroyFile(path); err != nil {
		return err
	}
	delete(m.tables, name)
	delete(m.open, name)
	if err := m.rewriteMeta(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"db": m.dbName, "table": name}).Info("catalog: dropped table")
	return nil
}

// ShowTables lists every table name in the open database.
func (m *Manager) ShowTables() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return nil, err
	}
	return sortedKeys(m.tables), nil
}

// DescTable returns the schema of one table.
func (m *Manager) DescTable(name string) (*TabMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return nil, err
	}
	tm, ok := m.tables[name]
	if !ok {
		return nil, errs.New(errs.TableNotFound, name)
	}
	return tm, nil
}

// HeapFile returns the open heap.File backing name, for use by the
// execution layer.
func (m *Manager) HeapFile(name string) (*heap.File, *TabMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return nil, nil, err
	}
	hf, ok := m.open[name]
	if !ok {
		return nil, nil, errs.New(errs.TableNotFound, name)
	}
	return hf, m.tables[name], nil
}

// rewriteMeta atomically replaces DB_META: write to a temp file in the
// same directory, then rename over the original, so a crash never
// leaves a half-written metadata file.
func (m *Manager) rewriteMeta() error {
	tmp := filepath.Join(m.dbDir, metaFileName+".tmp")
	if err := os.WriteFile(tmp, []byte(encodeMeta(m.dbName, m.tables)), 0o644); err != nil {
		return errs.Wrap(errs.IoError, err, "write temp DB_META")
	}
	if err := os.Rename(tmp, filepath.Join(m.dbDir, metaFileName)); err != nil {
		return errs.Wrap(errs.IoError, err, "rename DB_META")
	}
	return nil
}

// recordsPerPage computes N, the number of fixed-width slots that fit
// in one page alongside the 8-byte header and the bitmap those N
// slots require: N*recordSize + ceil(N/8) + 8 <= pageSize.
func recordsPerPage(pageSize, recordSize int) int {
	for n := (pageSize - 8) / recordSize; n > 0; n-- {
		bitmapBytes := (n + 7) / 8
		if 8+bitmapBytes+n*recordSize <= pageSize {
			return n
		}
	}
	return 1
}
