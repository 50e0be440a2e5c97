package fuse

import (
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/atomfs/inode"
)

type Options struct {
	FsName       string
	AllowOther   bool
	Debug        bool
	EntryTimeout time.Duration
	AttrTimeout  time.Duration
}

// Mount serves d's table at mountpoint, creating the directory if
// needed.  The caller unmounts the returned server.
func Mount(mountpoint string, d *Dispatcher, opts Options) (server *fuse.Server, err error) {
	defer Return(&err)
	err = os.MkdirAll(mountpoint, 0o755)
	Ck(err)

	if opts.FsName == "" {
		opts.FsName = "atomfs"
	}
	if opts.EntryTimeout == 0 {
		opts.EntryTimeout = time.Second
	}
	if opts.AttrTimeout == 0 {
		opts.AttrTimeout = time.Second
	}
	fopts := &fs.Options{
		EntryTimeout: &opts.EntryTimeout,
		AttrTimeout:  &opts.AttrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     opts.FsName,
			Name:       "atomfs",
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
		},
	}
	root := &node{d: d, ino: inode.RootIno}
	server, err = fs.Mount(mountpoint, root, fopts)
	Ck(err)
	return
}
