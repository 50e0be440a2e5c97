package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/atomfs/inode"
)

// node is one table record in the mounted tree.  Directories and
// files share the type; the record's Type decides which operations
// succeed.
type node struct {
	fs.Inode
	d   *Dispatcher
	ino uint64
}

var _ = (fs.NodeLookuper)((*node)(nil))
var _ = (fs.NodeReaddirer)((*node)(nil))
var _ = (fs.NodeGetattrer)((*node)(nil))
var _ = (fs.NodeOpener)((*node)(nil))
var _ = (fs.NodeReader)((*node)(nil))

func mode(t inode.EntryType) uint32 {
	switch t {
	case inode.Dir:
		return syscall.S_IFDIR
	case inode.File:
		return syscall.S_IFREG
	}
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (child *fs.Inode, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	r, ok := n.d.table.Child(n.ino, name)
	if !ok {
		return nil, syscall.ENOENT
	}
	errno = n.d.attr(ctx, r, &out.Attr)
	if errno != 0 {
		return nil, errno
	}
	child = n.NewInode(ctx, &node{d: n.d, ino: r.Ino}, fs.StableAttr{Mode: mode(r.Type), Ino: r.Ino})
	return child, 0
}

func (n *node) Readdir(ctx context.Context) (stream fs.DirStream, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	r, ok := n.d.table.Lookup(n.ino)
	if !ok {
		return nil, syscall.ENOENT
	}
	if r.Type != inode.Dir {
		return nil, syscall.ENOTDIR
	}
	var entries []fuse.DirEntry
	for _, child := range n.d.table.Children(n.ino) {
		entries = append(entries, fuse.DirEntry{Mode: mode(child.Type), Name: child.Name, Ino: child.Ino})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) (errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	r, ok := n.d.table.Lookup(n.ino)
	if !ok {
		return syscall.ENOENT
	}
	return n.d.attr(ctx, r, &out.Attr)
}

func (n *node) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, outflags uint32, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	// disallow writes
	if flags&(syscall.O_RDWR|syscall.O_WRONLY) != 0 {
		return nil, 0, syscall.EROFS
	}
	r, ok := n.d.table.Lookup(n.ino)
	if !ok {
		return nil, 0, syscall.ENOENT
	}
	if r.Type != inode.File {
		return nil, 0, syscall.EISDIR
	}
	// atoms never change under a hash
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (n *node) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (res fuse.ReadResult, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	buf, err := n.d.Read(ctx, n.ino, off, len(dest))
	if err != nil {
		log.Debugf("read %d: %v", n.ino, err)
		return nil, Errno(err)
	}
	return fuse.ReadResultData(buf), 0
}

// attr fills out from r.  Files with content may need a fetch to
// learn their size.
func (d *Dispatcher) attr(ctx context.Context, r inode.Record, out *fuse.Attr) syscall.Errno {
	out.Ino = r.Ino
	switch r.Type {
	case inode.Dir:
		out.Mode = syscall.S_IFDIR | 0o555
		out.Nlink = 2
	case inode.File:
		size, err := d.Size(ctx, r.Ino)
		if err != nil {
			return Errno(err)
		}
		out.Mode = syscall.S_IFREG | 0o444
		out.Nlink = 1
		out.Size = size
		out.Blocks = (size + 511) / 512
	default:
		return syscall.EIO
	}
	return 0
}

func msglog(msg string) {
	log.Errorf("unpanic: %v", msg)
}
