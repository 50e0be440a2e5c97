package inode

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/t7a/atomfs/db"
)

// Table maps inode numbers to records.  Implementations must be safe
// for concurrent use.
type Table interface {
	Lookup(ino uint64) (Record, bool)
	Child(parent uint64, name string) (Record, bool)
	Children(ino uint64) []Record
}

// MemTable is a Table held in memory.  It always contains the root.
type MemTable struct {
	mu       sync.RWMutex
	records  map[uint64]Record
	children map[uint64]map[string]uint64
	next     uint64
}

var _ Table = (*MemTable)(nil)

func NewMemTable() *MemTable {
	t := &MemTable{
		records:  make(map[uint64]Record),
		children: make(map[uint64]map[string]uint64),
		next:     RootIno + 1,
	}
	t.records[RootIno] = Record{Ino: RootIno, Parent: RootIno, Type: Dir}
	t.children[RootIno] = make(map[string]uint64)
	return t
}

func (t *MemTable) Lookup(ino uint64) (r Record, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok = t.records[ino]
	return
}

func (t *MemTable) Child(parent uint64, name string) (r Record, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ino, ok := t.children[parent][name]
	if !ok {
		return
	}
	r, ok = t.records[ino]
	return
}

// Children returns the entries of a directory sorted by name.
func (t *MemTable) Children(ino uint64) (out []Record) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, child := range t.children[ino] {
		out = append(out, t.records[child])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return
}

// Records returns every record sorted by inode number.
func (t *MemTable) Records() (out []Record) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ino < out[j].Ino })
	return
}

// Add inserts r.  A zero r.Ino gets the next free number.  The parent
// must be an existing directory and the name must be new there.
func (t *MemTable) Add(r Record) (out Record, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(r)
}

func (t *MemTable) add(r Record) (out Record, err error) {
	if r.Name == "" || r.Name == "." || r.Name == ".." || strings.Contains(r.Name, "/") {
		return out, fmt.Errorf("bad name %q", r.Name)
	}
	parent, ok := t.records[r.Parent]
	if !ok {
		return out, fmt.Errorf("%s: parent %d does not exist", r.Name, r.Parent)
	}
	if parent.Type != Dir {
		return out, fmt.Errorf("%s: parent %d is not a directory", r.Name, r.Parent)
	}
	if _, dup := t.children[r.Parent][r.Name]; dup {
		return out, fmt.Errorf("%s: already exists in %d", r.Name, r.Parent)
	}
	if r.Type != File && r.Size != 0 {
		return out, fmt.Errorf("%s: only files have a size", r.Name)
	}
	if _, ok := r.Content.Get(); ok && r.Type != File {
		return out, fmt.Errorf("%s: only files have content", r.Name)
	}
	if r.Ino == 0 {
		r.Ino = t.next
	}
	if _, dup := t.records[r.Ino]; dup {
		return out, fmt.Errorf("%s: inode %d already in use", r.Name, r.Ino)
	}
	if r.Ino >= t.next {
		t.next = r.Ino + 1
	}
	t.records[r.Ino] = r
	t.children[r.Parent][r.Name] = r.Ino
	if r.Type == Dir {
		t.children[r.Ino] = make(map[string]uint64)
	}
	return r, nil
}

// Mkdir adds an empty directory.
func (t *MemTable) Mkdir(parent uint64, name string) (Record, error) {
	return t.Add(Record{Parent: parent, Name: name, Type: Dir})
}

// AddFile adds a regular file reading from the atom h, which the
// caller says is size bytes long.
func (t *MemTable) AddFile(parent uint64, name string, h db.Hash, size uint64) (Record, error) {
	return t.Add(Record{Parent: parent, Name: name, Type: File, Size: size, Content: Some(h)})
}

// AddEmpty adds a regular file that has no content yet.
func (t *MemTable) AddEmpty(parent uint64, name string) (Record, error) {
	return t.Add(Record{Parent: parent, Name: name, Type: File})
}

// Live is a Table whose contents can be replaced wholesale while
// readers are using it.  Each call sees one complete table.
type Live struct {
	cur atomic.Pointer[MemTable]
}

var _ Table = (*Live)(nil)

func NewLive(t *MemTable) *Live {
	l := &Live{}
	l.cur.Store(t)
	return l
}

func (l *Live) Current() *MemTable {
	return l.cur.Load()
}

// Swap installs t and returns the table it replaced.
func (l *Live) Swap(t *MemTable) *MemTable {
	return l.cur.Swap(t)
}

func (l *Live) Lookup(ino uint64) (Record, bool) {
	return l.Current().Lookup(ino)
}

func (l *Live) Child(parent uint64, name string) (Record, bool) {
	return l.Current().Child(parent, name)
}

func (l *Live) Children(ino uint64) []Record {
	return l.Current().Children(ino)
}
