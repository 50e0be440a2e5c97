// Package kvtable keeps an inode table in badger, so a namespace too
// large to hold in memory can still be served.
//
// Keys:
//
//	r<ino>           msgpack record
//	c<parent><name>  child ino
//
// where <ino> and <parent> are 8-byte big-endian.
package kvtable

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"

	"github.com/t7a/atomfs/inode"
)

const (
	recordPrefix = 'r'
	childPrefix  = 'c'
)

type Table struct {
	db *badger.DB
}

var _ inode.Table = (*Table)(nil)

// Open opens or creates a table in dir.  An empty dir keeps the table
// in memory.
func Open(dir string) (t *Table, err error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(log.StandardLogger()).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening inode table %q: %w", dir, err)
	}
	t = &Table{db: db}

	// make sure there is a root
	_, ok := t.Lookup(inode.RootIno)
	if !ok {
		root := inode.Record{Ino: inode.RootIno, Parent: inode.RootIno, Type: inode.Dir}
		err = t.db.Update(func(txn *badger.Txn) error {
			return putRecord(txn, root)
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return
}

func (t *Table) Close() error {
	return t.db.Close()
}

func recordKey(ino uint64) []byte {
	key := make([]byte, 9)
	key[0] = recordPrefix
	binary.BigEndian.PutUint64(key[1:], ino)
	return key
}

func childKey(parent uint64, name string) []byte {
	key := make([]byte, 9, 9+len(name))
	key[0] = childPrefix
	binary.BigEndian.PutUint64(key[1:], parent)
	return append(key, name...)
}

func putRecord(txn *badger.Txn, r inode.Record) (err error) {
	buf, err := inode.MarshalRecord(r)
	if err != nil {
		return
	}
	return txn.Set(recordKey(r.Ino), buf)
}

func getRecord(txn *badger.Txn, ino uint64) (r inode.Record, err error) {
	item, err := txn.Get(recordKey(ino))
	if err != nil {
		return
	}
	err = item.Value(func(val []byte) error {
		r, err = inode.UnmarshalRecord(val)
		return err
	})
	return
}

// view runs fn in a read transaction and logs anything other than a
// missing key; callers only learn found or not found.
func (t *Table) view(what string, fn func(txn *badger.Txn) error) (ok bool) {
	err := t.db.View(fn)
	switch {
	case err == nil:
		return true
	case err == badger.ErrKeyNotFound:
	default:
		log.Errorf("inode table %s: %v", what, err)
	}
	return false
}

func (t *Table) Lookup(ino uint64) (r inode.Record, ok bool) {
	ok = t.view("lookup", func(txn *badger.Txn) (err error) {
		r, err = getRecord(txn, ino)
		return
	})
	return
}

func (t *Table) Child(parent uint64, name string) (r inode.Record, ok bool) {
	ok = t.view("child", func(txn *badger.Txn) (err error) {
		item, err := txn.Get(childKey(parent, name))
		if err != nil {
			return
		}
		buf, err := item.ValueCopy(nil)
		if err != nil {
			return
		}
		r, err = getRecord(txn, binary.BigEndian.Uint64(buf))
		return
	})
	return
}

// Children returns the entries of a directory sorted by name.
func (t *Table) Children(ino uint64) (out []inode.Record) {
	t.view("children", func(txn *badger.Txn) error {
		prefix := childKey(ino, "")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			buf, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			r, err := getRecord(txn, binary.BigEndian.Uint64(buf))
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return
}

// Import copies every record of src, replacing records with the same
// inode numbers.
func (t *Table) Import(src *inode.MemTable) (err error) {
	wb := t.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range src.Records() {
		buf, err := inode.MarshalRecord(r)
		if err != nil {
			return err
		}
		err = wb.Set(recordKey(r.Ino), buf)
		if err != nil {
			return err
		}
		if r.Ino == inode.RootIno {
			continue
		}
		ino := make([]byte, 8)
		binary.BigEndian.PutUint64(ino, r.Ino)
		err = wb.Set(childKey(r.Parent, r.Name), ino)
		if err != nil {
			return err
		}
	}
	return wb.Flush()
}
