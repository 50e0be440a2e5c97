// Package inode holds the namespace side of the filesystem: which
// inode numbers exist, how they nest, and which atom a regular file
// reads from.
package inode

import (
	"fmt"

	"github.com/vmihailenco/msgpack"

	_ "github.com/t7a/atomfs"
	"github.com/t7a/atomfs/db"
)

// RootIno is the inode number of the filesystem root, as in FUSE.
const RootIno uint64 = 1

type EntryType uint8

const (
	Other EntryType = iota
	File
	Dir
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "file"
	case Dir:
		return "dir"
	}
	return "other"
}

// Content is the optional atom behind a regular file.  The zero value
// has no content.
type Content struct {
	hash db.Hash
	ok   bool
}

func Some(h db.Hash) Content {
	return Content{hash: h, ok: true}
}

func None() Content {
	return Content{}
}

// Get returns the hash and whether there is one.
func (c Content) Get() (h db.Hash, ok bool) {
	return c.hash, c.ok
}

func (c Content) String() string {
	if !c.ok {
		return "-"
	}
	return c.hash.String()
}

// Record is what the table knows about one inode.  Size is the length
// the namespace expects the file's atom to have.
type Record struct {
	Ino     uint64
	Parent  uint64
	Name    string
	Type    EntryType
	Size    uint64
	Content Content
}

func (r Record) String() string {
	return fmt.Sprintf("%d\t%s\t%d\t%s\t%s", r.Ino, r.Type, r.Size, r.Content, r.Name)
}

// wire is the msgpack form of a Record.  A nil Hash means no content.
type wire struct {
	Ino    uint64 `msgpack:"ino"`
	Parent uint64 `msgpack:"parent"`
	Name   string `msgpack:"name"`
	Type   uint8  `msgpack:"type"`
	Size   uint64 `msgpack:"size"`
	Hash   []byte `msgpack:"hash,omitempty"`
}

func toWire(r Record) (w wire) {
	w = wire{Ino: r.Ino, Parent: r.Parent, Name: r.Name, Type: uint8(r.Type), Size: r.Size}
	if h, ok := r.Content.Get(); ok {
		w.Hash = append([]byte{}, h[:]...)
	}
	return
}

func fromWire(w wire) (r Record, err error) {
	r = Record{Ino: w.Ino, Parent: w.Parent, Name: w.Name, Type: EntryType(w.Type), Size: w.Size}
	if r.Type > Dir {
		return r, fmt.Errorf("inode %d: unknown type %d", w.Ino, w.Type)
	}
	switch len(w.Hash) {
	case 0:
	case db.HashSize:
		var h db.Hash
		copy(h[:], w.Hash)
		r.Content = Some(h)
	default:
		return r, fmt.Errorf("inode %d: hash is %d bytes", w.Ino, len(w.Hash))
	}
	return
}

// MarshalRecord encodes r with msgpack.
func MarshalRecord(r Record) ([]byte, error) {
	return msgpack.Marshal(toWire(r))
}

// UnmarshalRecord decodes what MarshalRecord produced.
func UnmarshalRecord(buf []byte) (r Record, err error) {
	var w wire
	err = msgpack.Unmarshal(buf, &w)
	if err != nil {
		return
	}
	return fromWire(w)
}
