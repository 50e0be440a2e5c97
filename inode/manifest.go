package inode

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/renameio"
	"github.com/vmihailenco/msgpack"
)

const manifestVersion = 1

// A manifest is a msgpack file listing every record of a table except
// the root.
type manifest struct {
	Version int    `msgpack:"version"`
	Records []wire `msgpack:"records"`
}

type ManifestError struct {
	Path   string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("bad manifest %s: %s", e.Path, e.Reason)
}

// SaveManifest writes t to path.  Readers never see a half-written
// file.
func SaveManifest(path string, t *MemTable) (err error) {
	m := manifest{Version: manifestVersion}
	for _, r := range t.Records() {
		if r.Ino == RootIno {
			continue
		}
		m.Records = append(m.Records, toWire(r))
	}
	buf, err := msgpack.Marshal(&m)
	if err != nil {
		return
	}
	return renameio.WriteFile(path, buf, 0644)
}

// LoadManifest reads path into a new MemTable.  Parents must come
// before their children, which SaveManifest guarantees by writing in
// inode order.
func LoadManifest(path string) (t *MemTable, err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var m manifest
	err = msgpack.Unmarshal(buf, &m)
	if err != nil {
		return nil, &ManifestError{Path: path, Reason: err.Error()}
	}
	if m.Version != manifestVersion {
		return nil, &ManifestError{Path: path, Reason: fmt.Sprintf("version %d, want %d", m.Version, manifestVersion)}
	}
	sort.SliceStable(m.Records, func(i, j int) bool { return m.Records[i].Ino < m.Records[j].Ino })

	t = NewMemTable()
	for _, w := range m.Records {
		if w.Ino <= RootIno {
			return nil, &ManifestError{Path: path, Reason: fmt.Sprintf("reserved inode %d", w.Ino)}
		}
		r, err := fromWire(w)
		if err != nil {
			return nil, &ManifestError{Path: path, Reason: err.Error()}
		}
		_, err = t.Add(r)
		if err != nil {
			return nil, &ManifestError{Path: path, Reason: err.Error()}
		}
	}
	return
}
