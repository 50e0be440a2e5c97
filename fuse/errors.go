package fuse

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"

	"github.com/t7a/atomfs/db"
)

// Kind says why a read failed.  The set is closed; every Kind has
// exactly one errno.
type Kind int

const (
	NoSuchEntry Kind = iota + 1
	NotAFile
	NoContent
	StoreIntegrityViolation
	StoreIoFailure
	InvalidArgument
)

var kindNames = map[Kind]string{
	NoSuchEntry:             "no such entry",
	NotAFile:                "not a file",
	NoContent:               "no content",
	StoreIntegrityViolation: "store integrity violation",
	StoreIoFailure:          "store i/o failure",
	InvalidArgument:         "invalid argument",
}

var kindErrnos = map[Kind]syscall.Errno{
	NoSuchEntry:             syscall.ENOENT,
	NotAFile:                syscall.EISDIR,
	NoContent:               syscall.ENOENT,
	StoreIntegrityViolation: syscall.EIO,
	StoreIoFailure:          syscall.EIO,
	InvalidArgument:         syscall.EINVAL,
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return name
}

// Errno is the code the kernel sees for k.  Anything outside the
// known set is an I/O error.
func (k Kind) Errno() syscall.Errno {
	errno, ok := kindErrnos[k]
	if !ok {
		return syscall.EIO
	}
	return errno
}

// ReadError is the only error type Dispatcher.Read returns.  Hash is
// set once resolution got far enough to know it.
type ReadError struct {
	Kind Kind
	Ino  uint64
	Hash db.Hash
	Err  error
}

func (e *ReadError) Error() string {
	msg := fmt.Sprintf("read inode %d: %s", e.Ino, e.Kind)
	if !e.Hash.IsZero() {
		msg += fmt.Sprintf(" (atom %s)", e.Hash)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a *ReadError anywhere in err's chain, or
// zero.
func KindOf(err error) Kind {
	var rerr *ReadError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}

// Errno maps any error to the code a FUSE reply carries: 0 for nil,
// the Kind's errno for a *ReadError, EIO for everything else.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var rerr *ReadError
	if errors.As(err, &rerr) {
		return rerr.Kind.Errno()
	}
	return syscall.EIO
}
