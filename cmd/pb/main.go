package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"

	"github.com/t7a/atomfs/config"
	pb "github.com/t7a/atomfs/db"
	"github.com/t7a/atomfs/fuse"
	"github.com/t7a/atomfs/inode"
)

type Opts struct {
	Init     bool
	Putatom  bool
	Getatom  bool
	Rmatom   bool
	Verify   bool
	Push     bool
	Mkfs     bool
	Mkdir    bool
	Addfile  bool
	Ls       bool
	Read     bool
	Algo     string `docopt:"--algo"`
	Codec    string `docopt:"--codec"`
	Depth    string `docopt:"--depth"`
	Hash     string
	Config   string
	Manifest string
	Parent   string
	Name     string
	Ino      string
	Offset   string
	Length   string
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `atomfs

Usage:
  pb init [--algo=<algo>] [--codec=<codec>] [--depth=<n>]
  pb putatom
  pb getatom <hash>
  pb rmatom <hash>
  pb verify
  pb push [<config>]
  pb mkfs <manifest>
  pb mkdir <manifest> <parent> <name>
  pb addfile <manifest> <parent> <name> [<hash>]
  pb ls <manifest> <ino>
  pb read <manifest> <ino> <offset> <length>

Options:
  -h --help        Show this screen.
  --version        Show version.
  --algo=<algo>    Hash algorithm, sha256 or blake3.
  --codec=<codec>  Atom encoding on disk: none, zstd or lz4.
  --depth=<n>      Subdirectory levels in the atom dir.

The db is in $DBDIR, or the current directory if that is unset.
`
	parser := &docopt.Parser{OptionsFirst: false}
	o, _ := parser.ParseArgs(usage, os.Args[1:], "0.0")
	var opts Opts
	err := o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debug(opts)

	switch true {
	case opts.Init:
		msg, err := create(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(msg)
	case opts.Putatom:
		buf, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Error(err)
			return 5
		}
		h, err := putAtom(buf)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(h)
	case opts.Getatom:
		buf, err := getAtom(opts.Hash)
		if err != nil {
			log.Error(err)
			return 42
		}
		_, err = os.Stdout.Write(buf)
		if err != nil {
			log.Error(err)
			return 25
		}
	case opts.Rmatom:
		err := rmAtom(opts.Hash)
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Verify:
		bad, err := verify()
		if err != nil {
			log.Error(err)
			return 42
		}
		for _, h := range bad {
			fmt.Println(h)
		}
		if len(bad) > 0 {
			return 42
		}
	case opts.Push:
		n, err := push(opts.Config)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Printf("pushed %d atoms\n", n)
	case opts.Mkfs:
		err := inode.SaveManifest(opts.Manifest, inode.NewMemTable())
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Mkdir:
		ino, err := mkdir(opts.Manifest, opts.Parent, opts.Name)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(ino)
	case opts.Addfile:
		ino, err := addFile(opts.Manifest, opts.Parent, opts.Name, opts.Hash)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(ino)
	case opts.Ls:
		records, err := ls(opts.Manifest, opts.Ino)
		if err != nil {
			log.Error(err)
			return 42
		}
		for _, r := range records {
			fmt.Println(r)
		}
	case opts.Read:
		buf, err := read(opts.Manifest, opts.Ino, opts.Offset, opts.Length)
		if err != nil {
			log.Error(err)
			fmt.Println(errnoName(fuse.Errno(err)))
			return 42
		}
		_, err = os.Stdout.Write(buf)
		if err != nil {
			log.Error(err)
			return 25
		}
	}
	return 0
}

func dbdir() (dir string) {
	dir = os.Getenv("DBDIR")
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			panic("can't get current directory")
		}
	}
	return
}

func create(opts Opts) (msg string, err error) {
	db := pb.Db{Dir: dbdir(), Algo: opts.Algo, Codec: opts.Codec}
	if opts.Depth != "" {
		db.Depth, err = strconv.Atoi(opts.Depth)
		if err != nil {
			return
		}
	}
	out, err := db.Create()
	if err != nil {
		return
	}
	return fmt.Sprintf("Initialized empty database in %s", out.Dir), nil
}

func opendb() (db *pb.Db, err error) {
	return pb.Open(dbdir())
}

func putAtom(buf []byte) (h pb.Hash, err error) {
	db, err := opendb()
	if err != nil {
		return
	}
	return db.PutAtom(buf)
}

func parse(db *pb.Db, raw string) (h pb.Hash, err error) {
	path, err := pb.Path{}.New(db, raw)
	if err != nil {
		return
	}
	return path.Hash, nil
}

func getAtom(raw string) (buf []byte, err error) {
	db, err := opendb()
	if err != nil {
		return
	}
	h, err := parse(db, raw)
	if err != nil {
		return
	}
	return db.Retrieve(context.Background(), h)
}

func rmAtom(raw string) (err error) {
	db, err := opendb()
	if err != nil {
		return
	}
	h, err := parse(db, raw)
	if err != nil {
		return
	}
	return db.Rm(h)
}

func verify() (bad []pb.Hash, err error) {
	db, err := opendb()
	if err != nil {
		return
	}
	return db.Fsck(context.Background())
}

// push copies every local atom to the bucket named in the s3 section
// of the config.
func push(path string) (n int, err error) {
	db, err := opendb()
	if err != nil {
		return
	}
	cfg, err := config.Read(path)
	if err != nil {
		return
	}
	if cfg.S3.Bucket == "" {
		return 0, fmt.Errorf("s3.bucket is not set")
	}
	ctx := context.Background()
	s, err := config.OpenS3(ctx, cfg)
	if err != nil {
		return
	}
	return s.Push(ctx, db)
}

func parseIno(s string) (ino uint64, err error) {
	ino, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad inode number %q", s)
	}
	return
}

func mkdir(manifest, parent, name string) (ino uint64, err error) {
	t, err := inode.LoadManifest(manifest)
	if err != nil {
		return
	}
	p, err := parseIno(parent)
	if err != nil {
		return
	}
	r, err := t.Mkdir(p, name)
	if err != nil {
		return
	}
	return r.Ino, inode.SaveManifest(manifest, t)
}

// addFile adds a file holding the atom raw, or an empty file if raw is
// blank.  The atom must already be in the db.
func addFile(manifest, parent, name, raw string) (ino uint64, err error) {
	t, err := inode.LoadManifest(manifest)
	if err != nil {
		return
	}
	p, err := parseIno(parent)
	if err != nil {
		return
	}
	var r inode.Record
	if raw == "" {
		r, err = t.AddEmpty(p, name)
	} else {
		var db *pb.Db
		var h pb.Hash
		var buf []byte
		db, err = opendb()
		if err != nil {
			return
		}
		h, err = parse(db, raw)
		if err != nil {
			return
		}
		buf, err = db.Retrieve(context.Background(), h)
		if err != nil {
			return
		}
		r, err = t.AddFile(p, name, h, uint64(len(buf)))
	}
	if err != nil {
		return
	}
	return r.Ino, inode.SaveManifest(manifest, t)
}

func ls(manifest, ino string) (records []inode.Record, err error) {
	t, err := inode.LoadManifest(manifest)
	if err != nil {
		return
	}
	n, err := parseIno(ino)
	if err != nil {
		return
	}
	r, ok := t.Lookup(n)
	if !ok {
		return nil, fmt.Errorf("no inode %d", n)
	}
	if r.Type != inode.Dir {
		return []inode.Record{r}, nil
	}
	return t.Children(n), nil
}

// read goes through the same path a FUSE read does.  Arguments that
// are not numbers fail the way a bad kernel request would, with EINVAL.
func read(manifest, ino, offset, length string) (buf []byte, err error) {
	n, err := parseIno(ino)
	if err != nil {
		return nil, &fuse.ReadError{Kind: fuse.InvalidArgument, Err: err}
	}
	off, err := strconv.ParseInt(offset, 10, 64)
	if err != nil {
		return nil, &fuse.ReadError{Kind: fuse.InvalidArgument, Ino: n, Err: err}
	}
	size, err := strconv.Atoi(length)
	if err != nil {
		return nil, &fuse.ReadError{Kind: fuse.InvalidArgument, Ino: n, Err: err}
	}
	db, err := opendb()
	if err != nil {
		return
	}
	t, err := inode.LoadManifest(manifest)
	if err != nil {
		return
	}
	d := fuse.NewDispatcher(db, t)
	return d.Read(context.Background(), n, off, size)
}

var errnoNames = map[syscall.Errno]string{
	syscall.ENOENT: "ENOENT",
	syscall.EISDIR: "EISDIR",
	syscall.EIO:    "EIO",
	syscall.EINVAL: "EINVAL",
}

func errnoName(errno syscall.Errno) string {
	name, ok := errnoNames[errno]
	if !ok {
		return fmt.Sprintf("errno %d", int(errno))
	}
	return name
}
