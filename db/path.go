package db

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Path locates an atom file.  Raw is whatever the caller handed us:
// a bare hex hash, a canonical path (atom/sha256/<hash>), a relative
// path with subdirs, or an absolute path inside the db.
type Path struct {
	Db    *Db
	Raw   string
	Abs   string // absolute
	Rel   string // relative
	Canon string // canonical
	Class string
	Algo  string
	Hash  Hash
	Addr  string
}

const atomClass = "atom"

func (path Path) New(db *Db, raw string) (res *Path, err error) {
	path.Db = db
	path.Raw = raw

	clean := filepath.Clean(raw)

	// remove db.Dir
	if strings.HasPrefix(clean, db.Dir+"/") {
		clean = strings.TrimPrefix(clean, db.Dir+"/")
	}

	parts := strings.Split(clean, "/")
	switch {
	case len(parts) == 1:
		path.Class = atomClass
		path.Algo = db.Algo
	case len(parts) >= 3:
		path.Class = parts[0]
		path.Algo = parts[1]
	default:
		return nil, fmt.Errorf("malformed path: %s", raw)
	}
	if path.Class != atomClass {
		return nil, fmt.Errorf("malformed path: %s: unknown class %s", raw, path.Class)
	}
	if path.Algo != db.Algo {
		return nil, fmt.Errorf("malformed path: %s: db uses %s", raw, db.Algo)
	}

	// the last part of the path should always be the full hash,
	// regardless of whether we were given the full or canonical
	// path
	path.Hash, err = ParseHash(parts[len(parts)-1])
	if err != nil {
		return
	}

	path.fill()
	return &path, nil
}

// fill derives the on-disk names from Class, Algo and Hash.  We use
// the nesting depth described in the Db comments, and keep the full
// hash as the file name so the files are easy to find with ls and
// sha256sum.
func (path *Path) fill() {
	hexhash := path.Hash.String()
	var subpath string
	for i := 0; i < path.Db.Depth; i++ {
		subdir := hexhash[(3 * i):((3 * i) + 3)]
		subpath = filepath.Join(subpath, subdir)
	}
	path.Rel = filepath.Join(path.Class, path.Algo, subpath, hexhash)
	path.Abs = filepath.Join(path.Db.Dir, path.Rel)
	path.Canon = filepath.Join(path.Class, path.Algo, hexhash)
	// Addr is a universally-unique address for the data stored at path.
	path.Addr = filepath.Join(path.Algo, hexhash)
}

// Path returns the location of the atom stored under h.
func (db *Db) Path(h Hash) *Path {
	path := &Path{Db: db, Raw: h.String(), Class: atomClass, Algo: db.Algo, Hash: h}
	path.fill()
	return path
}
