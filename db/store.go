package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Store hands out atoms by hash.  Implementations must be safe for
// concurrent use without any locking by the caller.  A successful
// Retrieve returns exactly the bytes stored under h; callers must
// not modify them.
type Store interface {
	Retrieve(ctx context.Context, h Hash) ([]byte, error)
}

// ErrNotFound means the store has no atom for the hash.
var ErrNotFound = errors.New("atom not found")

// ErrCorrupt means an atom's content no longer hashes to its address.
var ErrCorrupt = errors.New("atom content does not match hash")

// IoError wraps any failure below the content boundary: unreadable
// files, bad headers, decode failures, network errors.
type IoError struct {
	Hash Hash
	Op   string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Hash, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// MemStore keeps atoms in a map.
type MemStore struct {
	Algo  string
	mu    sync.RWMutex
	atoms map[Hash][]byte
}

func NewMemStore(algo string) *MemStore {
	return &MemStore{Algo: algo, atoms: make(map[Hash][]byte)}
}

func (m *MemStore) PutAtom(buf []byte) (h Hash, err error) {
	h, err = Sum(m.Algo, buf)
	if err != nil {
		return
	}
	cp := append([]byte{}, buf...)
	m.mu.Lock()
	m.atoms[h] = cp
	m.mu.Unlock()
	return
}

func (m *MemStore) Retrieve(ctx context.Context, h Hash) (buf []byte, err error) {
	m.mu.RLock()
	buf, ok := m.atoms[h]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return buf, nil
}

func (m *MemStore) Rm(h Hash) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.atoms[h]; !ok {
		return ErrNotFound
	}
	delete(m.atoms, h)
	return
}
