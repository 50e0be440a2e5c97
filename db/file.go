package db

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio"
	. "github.com/stevegt/goadapt"
)

// file modes
const (
	READ  = 0444
	WRITE = 0644
)

// Every atom file starts with a one-line header naming the codec of
// the body and the length of the decoded content:
//
//	atom zstd 11\n<body>
//
// The length lets us catch truncated files even when the body is
// stored raw and verification is off.
const headerMagic = "atom"

func header(codec string, size int) []byte {
	return []byte(fmt.Sprintf("%s %s %d\n", headerMagic, codec, size))
}

func parseHeader(raw []byte) (codec string, size int64, body []byte, err error) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		err = fmt.Errorf("missing header")
		return
	}
	fields := strings.Fields(string(raw[:i]))
	if len(fields) != 3 || fields[0] != headerMagic {
		err = fmt.Errorf("malformed header: %q", string(raw[:i]))
		return
	}
	codec = fields[1]
	size, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		err = fmt.Errorf("malformed header: %q", string(raw[:i]))
		return
	}
	body = raw[i+1:]
	return
}

// writeAtom stores buf at path, encoded with the db's codec.  The file
// only appears under its final name once it is complete.
func (db *Db) writeAtom(path *Path, buf []byte) (err error) {
	defer Return(&err)

	body, err := encode(db.Codec, buf)
	Ck(err)

	// make sure subdirs exist
	dir, _ := filepath.Split(path.Abs)
	err = mkdir(dir)
	Ck(err)

	pf, err := renameio.TempFile(db.tmpDir(), path.Abs)
	Ck(err)
	defer pf.Cleanup()

	_, err = pf.Write(header(db.Codec, len(buf)))
	Ck(err)
	_, err = pf.Write(body)
	Ck(err)
	err = pf.Chmod(READ)
	Ck(err)
	err = pf.CloseAtomicallyReplace()
	Ck(err)
	return
}

// readAtom loads and decodes the atom file at path.  It never returns
// partial content: a missing file is ErrNotFound, anything else that
// goes wrong is an *IoError.
func readAtom(path *Path) (buf []byte, err error) {
	raw, err := os.ReadFile(path.Abs)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &IoError{Hash: path.Hash, Op: "read", Err: err}
	}
	codec, size, body, err := parseHeader(raw)
	if err != nil {
		return nil, &IoError{Hash: path.Hash, Op: "read", Err: fmt.Errorf("%s: %w", path.Abs, err)}
	}
	buf, err = decode(codec, body)
	if err != nil {
		return nil, &IoError{Hash: path.Hash, Op: "decode", Err: err}
	}
	if int64(len(buf)) != size {
		return nil, &IoError{Hash: path.Hash, Op: "read", Err: fmt.Errorf("%s: short atom: want %d bytes, got %d", path.Abs, size, len(buf))}
	}
	return
}
