package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/stevegt/goadapt"
)

const testDbDirPrefix = "atomfs"

func mkbuf(s string) []byte {
	tmp := []byte(s)
	return tmp
}

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func setup(t *testing.T, db *Db) *Db {
	var err error
	var dir string

	if db == nil {
		db = &Db{}
	}
	Assert(db.Dir == "")

	debug := os.Getenv("DEBUG")
	if debug == "1" {
		dir, err = os.MkdirTemp("", testDbDirPrefix)
		Ck(err)
		fmt.Println(dir)
		// no cleanup
	} else {
		dir = t.TempDir()
		// automatically cleaned up
	}
	db.Dir = dir

	db, err = db.Create()
	Ck(err)
	db, err = Open(dir)
	Ck(err)
	tassert(t, db != nil, "db is nil")

	return db
}

// overwrite replaces the raw file behind an atom.
func overwrite(t *testing.T, db *Db, h Hash, raw []byte) {
	t.Helper()
	path := db.Path(h)
	err := os.Chmod(path.Abs, WRITE)
	tassert(t, err == nil, "%v", err)
	err = os.WriteFile(path.Abs, raw, WRITE)
	tassert(t, err == nil, "%v", err)
}

func TestPutRetrieve(t *testing.T) {
	ctx := context.Background()
	for _, algo := range []string{AlgoSha256, AlgoBlake3} {
		for _, codec := range []string{CodecNone, CodecZstd, CodecLz4} {
			db := setup(t, &Db{Algo: algo, Codec: codec, Verify: true})
			val := mkbuf("somevalue")
			h, err := db.PutAtom(val)
			tassert(t, err == nil, "%s/%s: %v", algo, codec, err)
			expect, _ := Sum(algo, val)
			tassert(t, h == expect, "%s/%s: hash %s", algo, codec, h)
			tassert(t, db.Has(h), "%s/%s: not stored", algo, codec)

			got, err := db.Retrieve(ctx, h)
			tassert(t, err == nil, "%s/%s: %v", algo, codec, err)
			tassert(t, bytes.Equal(val, got), "%s/%s: expected %q, got %q", algo, codec, val, got)

			// storing twice is fine
			h2, err := db.PutAtom(val)
			tassert(t, err == nil && h2 == h, "%s/%s: second put %s %v", algo, codec, h2, err)
		}
	}
}

func TestFileLayout(t *testing.T) {
	db := setup(t, nil)
	h, err := db.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)
	expect := filepath.Join(db.Dir, "atom/sha256/70a/524/70a524688ced8e45d26776fd4dc56410725b566cd840c044546ab30c4b499342")
	tassert(t, db.Path(h).Abs == expect, "path %s", db.Path(h).Abs)
	raw, err := os.ReadFile(expect)
	tassert(t, err == nil, "%v", err)
	tassert(t, string(raw) == "atom none 9\nsomevalue", "raw %q", raw)
	info, err := os.Stat(expect)
	tassert(t, err == nil, "%v", err)
	tassert(t, info.Mode().Perm() == READ, "mode %v", info.Mode())
}

func TestEmptyAtom(t *testing.T) {
	db := setup(t, &Db{Codec: CodecZstd})
	h, err := db.PutAtom(nil)
	tassert(t, err == nil, "%v", err)
	got, err := db.Retrieve(context.Background(), h)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(got) == 0, "got %q", got)
}

func TestRetrieveNotFound(t *testing.T) {
	db := setup(t, nil)
	h, _ := Sum(AlgoSha256, mkbuf("never stored"))
	_, err := db.Retrieve(context.Background(), h)
	tassert(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestRetrieveDamaged(t *testing.T) {
	ctx := context.Background()
	db := setup(t, nil)
	h, err := db.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)

	cases := map[string][]byte{
		"truncated": mkbuf("atom none 9\nsome"),
		"noheader":  mkbuf("somevalue"),
		"badsize":   mkbuf("atom none nine\nsomevalue"),
		"badcodec":  mkbuf("atom gzip 9\nsomevalue"),
		"badzstd":   mkbuf("atom zstd 9\nsomevalue"),
	}
	for name, raw := range cases {
		overwrite(t, db, h, raw)
		got, err := db.Retrieve(ctx, h)
		var ioerr *IoError
		tassert(t, errors.As(err, &ioerr), "%s: expected IoError, got %v", name, err)
		tassert(t, ioerr.Hash == h, "%s: hash %s", name, ioerr.Hash)
		tassert(t, got == nil, "%s: returned %q with error", name, got)
	}
}

func TestRetrieveVerify(t *testing.T) {
	ctx := context.Background()
	db := setup(t, nil)
	h, err := db.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)

	// same length, different content
	overwrite(t, db, h, mkbuf("atom none 9\nsomevalu3"))

	// without verification the swap goes unnoticed
	got, err := db.Retrieve(ctx, h)
	tassert(t, err == nil, "%v", err)
	tassert(t, string(got) == "somevalu3", "got %q", got)

	db.Verify = true
	_, err = db.Retrieve(ctx, h)
	tassert(t, errors.Is(err, ErrCorrupt), "expected ErrCorrupt, got %v", err)
}

func TestRetrieveCancelled(t *testing.T) {
	db := setup(t, nil)
	h, err := db.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.Retrieve(ctx, h)
	var ioerr *IoError
	tassert(t, errors.As(err, &ioerr), "expected IoError, got %v", err)
	tassert(t, errors.Is(err, context.Canceled), "expected Canceled, got %v", err)
}

func TestRm(t *testing.T) {
	db := setup(t, nil)
	h, err := db.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)
	err = db.Rm(h)
	tassert(t, err == nil, "%v", err)
	tassert(t, !db.Has(h), "atom not deleted")
	_, err = db.Retrieve(context.Background(), h)
	tassert(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
	err = db.Rm(h)
	tassert(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestAtomsAndFsck(t *testing.T) {
	ctx := context.Background()
	db := setup(t, nil)
	var stored []Hash
	for i := 0; i < 20; i++ {
		h, err := db.PutAtom(mkbuf(fmt.Sprintf("value %d", i)))
		tassert(t, err == nil, "%v", err)
		stored = append(stored, h)
	}

	// a stray file is ignored
	err := os.WriteFile(filepath.Join(db.Dir, "atom", "sha256", "README"), mkbuf("hi"), WRITE)
	tassert(t, err == nil, "%v", err)

	seen := make(map[Hash]bool)
	err = db.Atoms(ctx, func(h Hash) error {
		seen[h] = true
		return nil
	})
	tassert(t, err == nil, "%v", err)
	tassert(t, len(seen) == len(stored), "saw %d atoms", len(seen))

	bad, err := db.Fsck(ctx)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(bad) == 0, "bad %v", bad)

	overwrite(t, db, stored[3], mkbuf("atom none 7\nvalue x"))
	overwrite(t, db, stored[11], mkbuf("garbage"))
	bad, err = db.Fsck(ctx)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(bad) == 2, "bad %v", bad)
	for _, h := range bad {
		tassert(t, h == stored[3] || h == stored[11], "unexpected %s", h)
	}
}

func TestCreateExists(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "somefile"), mkbuf("x"), WRITE)
	tassert(t, err == nil, "%v", err)
	_, err = Db{Dir: dir}.Create()
	var exerr *ExistsError
	tassert(t, errors.As(err, &exerr), "expected ExistsError, got %v", err)

	_, err = Db{Dir: t.TempDir(), Algo: "md5"}.Create()
	tassert(t, err != nil, "expected error for md5")
	_, err = Db{Dir: t.TempDir(), Codec: "gzip"}.Create()
	tassert(t, err != nil, "expected error for gzip")
}

func TestOpenNotDb(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	var nderr *NotDbError
	tassert(t, errors.As(err, &nderr), "expected NotDbError, got %v", err)
	_, err = Open(filepath.Join(dir, "nonexistent"))
	tassert(t, err != nil, "expected error")
}

func TestOpenMoved(t *testing.T) {
	db := setup(t, &Db{Algo: AlgoBlake3, Codec: CodecLz4, Depth: 3})
	h, err := db.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)
	newdir := filepath.Join(t.TempDir(), "moved")
	err = os.Rename(db.Dir, newdir)
	tassert(t, err == nil, "%v", err)
	db2, err := Open(newdir)
	tassert(t, err == nil, "%v", err)
	tassert(t, db2.Dir == newdir && db2.Algo == AlgoBlake3 && db2.Codec == CodecLz4 && db2.Depth == 3, "%#v", db2)
	got, err := db2.Retrieve(context.Background(), h)
	tassert(t, err == nil && string(got) == "somevalue", "got %q %v", got, err)
}

func TestConcurrentRetrieve(t *testing.T) {
	ctx := context.Background()
	db := setup(t, &Db{Codec: CodecZstd, Verify: true})
	var hashes []Hash
	for i := 0; i < 8; i++ {
		h, err := db.PutAtom(bytes.Repeat(mkbuf(fmt.Sprintf("%d", i)), 1000))
		tassert(t, err == nil, "%v", err)
		hashes = append(hashes, h)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := hashes[i%len(hashes)]
			buf, err := db.Retrieve(ctx, h)
			if err != nil {
				errs <- err
				return
			}
			if len(buf) != 1000 {
				errs <- fmt.Errorf("short read %d", len(buf))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(AlgoSha256)
	h, err := m.PutAtom(mkbuf("somevalue"))
	tassert(t, err == nil, "%v", err)
	tassert(t, h.String() == "70a524688ced8e45d26776fd4dc56410725b566cd840c044546ab30c4b499342", "hash %s", h)
	got, err := m.Retrieve(ctx, h)
	tassert(t, err == nil && string(got) == "somevalue", "got %q %v", got, err)
	err = m.Rm(h)
	tassert(t, err == nil, "%v", err)
	_, err = m.Retrieve(ctx, h)
	tassert(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}
