package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"syscall"

	"github.com/zeebo/blake3"
)

// HashSize is the width of every hash we store atoms under.  Both
// supported algorithms produce 32 bytes.
const HashSize = 32

// hash algorithms
const (
	AlgoSha256 = "sha256"
	AlgoBlake3 = "blake3"
)

// Hash is the address of an atom.
type Hash [HashSize]byte

// ParseHash converts the 64-character hex form of a hash back into a
// Hash.  Anything else is rejected with a *HashError.
func ParseHash(s string) (h Hash, err error) {
	if len(s) != 2*HashSize {
		return h, &HashError{Raw: s, Reason: fmt.Sprintf("want %d hex characters, got %d", 2*HashSize, len(s))}
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return h, &HashError{Raw: s, Reason: fmt.Sprintf("bad character %q", c)}
		}
	}
	_, err = hex.Decode(h[:], []byte(s))
	if err != nil {
		return h, &HashError{Raw: s, Reason: err.Error()}
	}
	return
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zeros hash, which no real
// content produces.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// key is the form ristretto and redis index by.
func (h Hash) key() string {
	return string(h[:])
}

// Sum hashes buf with the named algorithm.
func Sum(algo string, buf []byte) (h Hash, err error) {
	switch algo {
	case AlgoSha256:
		h = sha256.Sum256(buf)
	case AlgoBlake3:
		h = blake3.Sum256(buf)
	default:
		err = fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
	}
	return
}

type HashError struct {
	Raw    string
	Reason string
}

func (e *HashError) Error() string {
	return fmt.Sprintf("malformed hash %q: %s", e.Raw, e.Reason)
}
