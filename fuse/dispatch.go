// Package fuse serves an inode table over a content store as a
// read-only FUSE filesystem.
package fuse

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "github.com/t7a/atomfs"
	"github.com/t7a/atomfs/db"
	"github.com/t7a/atomfs/inode"
)

// Dispatcher serves reads by looking the inode up in a table and
// slicing the atom it names out of a store.  It has no mutable state
// of its own; one Dispatcher serves every concurrent read of a mount.
type Dispatcher struct {
	store db.Store
	table inode.Table
}

func NewDispatcher(store db.Store, table inode.Table) *Dispatcher {
	return &Dispatcher{store: store, table: table}
}

func (d *Dispatcher) Table() inode.Table {
	return d.table
}

// Read returns up to n bytes of inode ino starting at off.  Reading
// at or past the end returns an empty slice, not an error.  The
// returned slice may share memory with the store's cache and must not
// be modified.
func (d *Dispatcher) Read(ctx context.Context, ino uint64, off int64, n int) (buf []byte, err error) {
	if off < 0 || n < 0 {
		return nil, &ReadError{Kind: InvalidArgument, Ino: ino, Err: fmt.Errorf("offset %d length %d", off, n)}
	}
	r, h, err := d.resolve(ino)
	if err != nil {
		return
	}
	atom, err := d.fetch(ctx, r, h)
	if err != nil {
		return
	}
	return slice(atom, off, n), nil
}

// Size returns the length of a file's content.  A file without
// content is empty.
func (d *Dispatcher) Size(ctx context.Context, ino uint64) (size uint64, err error) {
	r, h, err := d.resolve(ino)
	if KindOf(err) == NoContent {
		return 0, nil
	}
	if err != nil {
		return
	}
	if r.Size > 0 {
		return r.Size, nil
	}
	atom, err := d.fetch(ctx, r, h)
	if err != nil {
		return
	}
	return uint64(len(atom)), nil
}

// resolve finds the atom behind a regular file.
func (d *Dispatcher) resolve(ino uint64) (r inode.Record, h db.Hash, err error) {
	r, ok := d.table.Lookup(ino)
	if !ok {
		return r, h, &ReadError{Kind: NoSuchEntry, Ino: ino}
	}
	if r.Type != inode.File {
		return r, h, &ReadError{Kind: NotAFile, Ino: ino, Err: fmt.Errorf("%s is a %s", r.Name, r.Type)}
	}
	h, ok = r.Content.Get()
	if !ok {
		return r, h, &ReadError{Kind: NoContent, Ino: ino}
	}
	return
}

// fetch retrieves the atom and checks it against what the namespace
// expects.  A missing atom or a length disagreement means the
// namespace and the store have diverged; that gets logged.
func (d *Dispatcher) fetch(ctx context.Context, r inode.Record, h db.Hash) (atom []byte, err error) {
	fields := log.Fields{"hash": h.String(), "ino": r.Ino}
	atom, err = d.store.Retrieve(ctx, h)
	switch {
	case errors.Is(err, db.ErrNotFound):
		log.WithFields(fields).Error("inode references an atom the store does not have")
		return nil, &ReadError{Kind: StoreIntegrityViolation, Ino: r.Ino, Hash: h, Err: err}
	case err != nil:
		log.WithFields(fields).Errorf("store failure: %v", err)
		return nil, &ReadError{Kind: StoreIoFailure, Ino: r.Ino, Hash: h, Err: err}
	}
	if r.Size != 0 && r.Size != uint64(len(atom)) {
		err = fmt.Errorf("inode size %d, atom size %d", r.Size, len(atom))
		log.WithFields(fields).Errorf("size mismatch: %v", err)
		return nil, &ReadError{Kind: StoreIntegrityViolation, Ino: r.Ino, Hash: h, Err: err}
	}
	return
}

// slice returns atom[off:off+n], clipped to the atom.
func slice(atom []byte, off int64, n int) []byte {
	size := int64(len(atom))
	if off >= size || n == 0 {
		return []byte{}
	}
	end := size
	if int64(n) < size-off {
		end = off + int64(n)
	}
	return atom[off:end]
}
