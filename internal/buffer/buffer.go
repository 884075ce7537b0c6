// Package buffer implements the page cache named as an external
// collaborator in spec.md §6 (fetch_page/new_page/unpin_page). Its
// replacement-policy algorithm is explicitly out of scope for the
// specified core (spec.md §1), but C3 cannot run without a working
// cache, so this module ships the teacher's LRU/MRU policy, adapted
// from buffer/manager.go to key frames by (disk.Fd, page number)
// instead of the teacher's (FileIdx, PageIdx) sharded layout.
package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jmcarbo/reldb/internal/disk"
	"github.com/jmcarbo/reldb/internal/errs"
)

// Policy selects which unpinned frame to evict first.
type Policy string

const (
	PolicyLRU Policy = "LRU"
	PolicyMRU Policy = "MRU"
)

// Key identifies a cached page.
type Key struct {
	Fd     disk.Fd
	PageNo int64
}

func (k Key) String() string { return fmt.Sprintf("%d:%d", k.Fd, k.PageNo) }

// Frame is one cache slot: a pinned or unpinned copy of a page's bytes.
type Frame struct {
	Key      Key
	Data     []byte
	PinCount int
	Dirty    bool
}

// Pool is the page cache. One Pool is shared by every heap file opened
// against the same disk.Manager (spec.md §3 "Ownership": pages are
// shared between the cache and the code that has pinned them).
type Pool struct {
	dm       *disk.Manager
	pageSize int
	policy   Policy

	mu     sync.Mutex
	frames []*Frame
	repl   *list.List
	lookup map[Key]*list.Element
}

// New constructs a Pool with numFrames frames of pageSize bytes each.
func New(dm *disk.Manager, numFrames int, pageSize int, policy Policy) *Pool {
	if policy == "" {
		policy = PolicyLRU
	}
	p := &Pool{
		dm:       dm,
		pageSize: pageSize,
		policy:   policy,
		frames:   make([]*Frame, numFrames),
		repl:     list.New(),
		lookup:   make(map[Key]*list.Element),
	}
	for i := range p.frames {
		p.frames[i] = &Frame{Data: make([]byte, pageSize)}
	}
	return p
}

// FetchPage pins and returns the frame for (fd, pageNo), reading it
// from disk on a cache miss.
func (p *Pool) FetchPage(fd disk.Fd, pageNo int64) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := Key{fd, pageNo}
	if el, ok := p.lookup[key]; ok {
		p.touch(el)
		fr := el.Value.(*Frame)
		fr.PinCount++
		return fr, nil
	}
	for _, f := range p.frames {
		if f.PinCount == 0 && f.Key == (Key{}) {
			if err := p.loadInto(f, key); err != nil {
				return nil, err
			}
			el := p.repl.PushBack(f)
			p.lookup[key] = el
			return f, nil
		}
	}
	return p.evictAndLoad(key)
}

// NewPage pins a fresh all-zero frame for (fd, pageNo) without reading
// it from disk (the caller is about to initialize it), mirroring
// spec.md §6's new_page(&page_id).
func (p *Pool) NewPage(fd disk.Fd, pageNo int64) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := Key{fd, pageNo}
	for _, f := range p.frames {
		if f.PinCount == 0 && f.Key == (Key{}) {
			f.Key = key
			f.PinCount = 1
			f.Dirty = false
			for i := range f.Data {
				f.Data[i] = 0
			}
			el := p.repl.PushBack(f)
			p.lookup[key] = el
			return f, nil
		}
	}
	fr, err := p.evictAndLoad(key)
	if err != nil {
		return nil, err
	}
	for i := range fr.Data {
		fr.Data[i] = 0
	}
	return fr, nil
}

func (p *Pool) evictAndLoad(key Key) (*Frame, error) {
	var victimEl *list.Element
	for el := p.frontByPolicy(); el != nil; el = p.nextByPolicy(el) {
		if el.Value.(*Frame).PinCount == 0 {
			victimEl = el
			break
		}
	}
	if victimEl == nil {
		return nil, errs.New(errs.Internal, "all frames pinned, cannot evict")
	}
	victim := victimEl.Value.(*Frame)
	if victim.Dirty {
		if err := p.dm.WritePage(victim.Key.Fd, victim.Key.PageNo, victim.Data); err != nil {
			return nil, err
		}
	}
	delete(p.lookup, victim.Key)
	if err := p.loadInto(victim, key); err != nil {
		return nil, err
	}
	p.touch(victimEl)
	p.lookup[key] = victimEl
	return victim, nil
}

func (p *Pool) loadInto(f *Frame, key Key) error {
	if err := p.dm.ReadPage(key.Fd, key.PageNo, f.Data); err != nil {
		return err
	}
	f.Key = key
	f.PinCount = 1
	f.Dirty = false
	return nil
}

func (p *Pool) frontByPolicy() *list.Element {
	if p.policy == PolicyLRU {
		return p.repl.Front()
	}
	return p.repl.Back()
}

func (p *Pool) nextByPolicy(el *list.Element) *list.Element {
	if p.policy == PolicyLRU {
		return el.Next()
	}
	return el.Prev()
}

func (p *Pool) touch(el *list.Element) {
	if p.policy == PolicyLRU {
		p.repl.MoveToBack(el)
	} else {
		p.repl.MoveToFront(el)
	}
}

// Unpin releases one pin on (fd, pageNo), marking it dirty if dirty is
// true. It is the caller's responsibility to call this on every exit
// path, including error paths (spec.md §5).
func (p *Pool) Unpin(fd disk.Fd, pageNo int64, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := Key{fd, pageNo}
	el, ok := p.lookup[key]
	if !ok {
		return errs.New(errs.Internal, "unpin of page not in cache")
	}
	f := el.Value.(*Frame)
	if f.PinCount > 0 {
		f.PinCount--
	}
	if dirty {
		f.Dirty = true
	}
	return nil
}

// FlushAll writes every dirty frame back and resets the pool.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.Dirty && f.Key != (Key{}) {
			if err := p.dm.WritePage(f.Key.Fd, f.Key.PageNo, f.Data); err != nil {
				return err
			}
			f.Dirty = false
		}
		f.Key = Key{}
		f.PinCount = 0
	}
	p.repl.Init()
	p.lookup = make(map[Key]*list.Element)
	logrus.Debug("buffer: flushed all frames")
	return nil
}
