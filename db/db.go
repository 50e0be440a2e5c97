package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"golang.org/x/sync/errgroup"

	_ "github.com/t7a/atomfs"
)

// Db is a directory of atoms.  Dir is the base directory. Depth is the
// number of subdirectory levels in the atom dir.  We use
// three-character hexadecimal names for the subdirectories, giving us
// a maximum of 4096 subdirs in a parent dir.  Two-character names
// (such as what git uses under .git/objects) only allow for 256
// subdirs, which is unnecessarily small.  Four-character names would
// give us 65,536 subdirs, which would cause performance issues on
// e.g. ext4.
//
// Algo and Codec are fixed when the db is created.  With Verify set,
// every Retrieve re-hashes the content it read.
//
// A *Db holds no mutable state once opened, so one value can serve
// any number of concurrent readers.
type Db struct {
	Dir    string // base of tree
	Depth  int    // number of subdir levels in atom dir
	Algo   string // hash algorithm
	Codec  string // encoding of atom bodies
	Verify bool   // re-hash on every read
}

const maxDepth = 2 * HashSize / 3

// Open loads an existing db object from dir.
func Open(dir string) (db *Db, err error) {
	dir = filepath.Clean(dir)

	if !canstat(dir) {
		return nil, fmt.Errorf("cannot open: %s", dir)
	}

	// load config
	buf, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, &NotDbError{Dir: dir}
	}
	db = &Db{}
	err = json.Unmarshal(buf, db)
	if err != nil {
		return nil, errors.Wrapf(err, "%s/config.json", dir)
	}
	// the config may have been written somewhere else
	db.Dir = dir

	err = db.check()
	if err != nil {
		return nil, err
	}
	return
}

func (db *Db) check() (err error) {
	if db.Depth < 1 || db.Depth > maxDepth {
		return fmt.Errorf("%s: depth %d out of range", db.Dir, db.Depth)
	}
	_, err = Sum(db.Algo, nil)
	if err != nil {
		return
	}
	return checkCodec(db.Codec)
}

// Create initializes a db directory and its contents
func (db Db) Create() (out *Db, err error) {
	defer Return(&err)

	dir := db.Dir
	Assert(dir != "", "db dir is empty")

	// if directory exists, make sure it's empty
	if canstat(dir) {
		var files []os.DirEntry
		files, err = os.ReadDir(dir)
		Ck(err)
		if len(files) > 0 {
			return nil, &ExistsError{Dir: dir}
		}
	}

	// defaults
	if db.Depth < 1 {
		db.Depth = 2
	}
	if db.Algo == "" {
		db.Algo = AlgoSha256
	}
	if db.Codec == "" {
		db.Codec = CodecNone
	}
	err = db.check()
	Ck(err)

	err = mkdir(dir)
	Ck(err)

	// The atom dir is where we store hashed content
	err = mkdir(filepath.Join(dir, atomClass, db.Algo))
	Ck(err)

	// half-written atoms live here until they are renamed into place
	err = mkdir(db.tmpDir())
	Ck(err)

	buf, err := json.MarshalIndent(db, "", "  ")
	Ck(err)
	err = renameio.WriteFile(filepath.Join(dir, "config.json"), buf, WRITE)
	Ck(err)

	log.WithFields(log.Fields{"dir": dir, "algo": db.Algo, "codec": db.Codec}).Debug("created db")
	return &db, nil
}

type NotDbError struct {
	Dir string
}

func (e *NotDbError) Error() string {
	return fmt.Sprintf("not a database: %s", e.Dir)
}

type ExistsError struct {
	Dir string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("directory not empty: %s", e.Dir)
}

func (db *Db) tmpDir() string {
	return filepath.Join(db.Dir, "tmp")
}

// PutAtom hashes buf, stores it in a file named after the hash, and
// returns the hash.  Storing content that is already present is a
// no-op.
func (db *Db) PutAtom(buf []byte) (h Hash, err error) {
	defer Return(&err)

	Assert(db != nil, "db is nil")

	h, err = Sum(db.Algo, buf)
	Ck(err)

	path := db.Path(h)
	if exists(path.Abs) {
		log.Debugf("atom %s already present", h)
		return
	}

	err = db.writeAtom(path, buf)
	Ck(err)
	return
}

// Retrieve returns the content of the atom stored under h.
func (db *Db) Retrieve(ctx context.Context, h Hash) (buf []byte, err error) {
	return db.retrieve(ctx, h, db.Verify)
}

func (db *Db) retrieve(ctx context.Context, h Hash, verify bool) (buf []byte, err error) {
	if err = ctx.Err(); err != nil {
		return nil, &IoError{Hash: h, Op: "read", Err: err}
	}
	buf, err = readAtom(db.Path(h))
	if err != nil {
		return nil, err
	}
	if verify {
		got, err := Sum(db.Algo, buf)
		if err != nil {
			return nil, &IoError{Hash: h, Op: "verify", Err: err}
		}
		if got != h {
			return nil, &IoError{Hash: h, Op: "verify", Err: ErrCorrupt}
		}
	}
	return
}

// Has reports whether an atom is stored under h.
func (db *Db) Has(h Hash) bool {
	return exists(db.Path(h).Abs)
}

// Rm deletes the atom stored under h.
func (db *Db) Rm(h Hash) (err error) {
	err = os.Remove(db.Path(h).Abs)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return
}

// Atoms calls fn for every atom in the db, in no particular order.
// Stray files that are not named after a hash are skipped.
func (db *Db) Atoms(ctx context.Context, fn func(Hash) error) (err error) {
	top := filepath.Join(db.Dir, atomClass, db.Algo)
	return filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		h, err := ParseHash(d.Name())
		if err != nil {
			log.Warnf("skipping stray file %s", path)
			return nil
		}
		return fn(h)
	})
}

// Fsck re-reads and re-hashes every atom in the db and returns the
// hashes of those that are damaged, sorted.
func (db *Db) Fsck(ctx context.Context) (bad []Hash, err error) {
	var hashes []Hash
	err = db.Atoms(ctx, func(h Hash) error {
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, h := range hashes {
		h := h
		g.Go(func() error {
			_, err := db.retrieve(ctx, h, true)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ioerr *IoError
			if errors.As(err, &ioerr) || errors.Is(err, ErrNotFound) {
				log.WithField("hash", h).Warnf("damaged atom: %v", err)
				mu.Lock()
				bad = append(bad, h)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(bad, func(i, j int) bool {
		return bytes.Compare(bad[i][:], bad[j][:]) < 0
	})
	return
}
