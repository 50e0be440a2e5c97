/*

Atomfs serves a read-only filesystem whose file contents live in a
content-addressable store.

Vocabulary:

- atom: immutable byte content stored under the hash of that content
- hash: 32-byte digest of an atom, written as 64 hex characters
- algo: name of the hash algorithm a db was created with (sha256, blake3)
- codec: name of the on-disk encoding of atom bodies (none, zstd, lz4)
- subdir: three-character hexadecimal segment of hash
- subdirs: one or more subdir segments inserted in the on-disk path
	in order to keep directory sizes small; the number of subdirs is fixed
	at database creation
- ino: inode number of a filesystem entry; the root is always 1
- record: what the inode table knows about an ino: parent, name, type,
	size and, for regular files, an optional content hash
- manifest: msgpack file listing every record of a namespace
- dispatcher: turns a (ino, offset, length) read into a store retrieval
	plus a byte-range slice

Packages:

- db: the store; local sharded directory plus cache, s3 and redis layers
- inode: records, tables and manifests
- fuse: the read dispatcher and the go-fuse node tree
- config: process configuration for the daemon

This package only carries the logging setup shared by the others.

*/

package atomfs
