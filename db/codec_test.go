package db

import (
	"bytes"
	"errors"
	"syscall"
	"testing"
)

func TestCodecs(t *testing.T) {
	val := bytes.Repeat(mkbuf("hello world "), 1000)
	for _, codec := range []string{CodecNone, CodecZstd, CodecLz4} {
		body, err := encode(codec, val)
		tassert(t, err == nil, "%s: %v", codec, err)
		if codec != CodecNone {
			tassert(t, len(body) < len(val), "%s: %d bytes did not compress", codec, len(body))
		}
		got, err := decode(codec, body)
		tassert(t, err == nil, "%s: %v", codec, err)
		tassert(t, bytes.Equal(val, got), "%s: round trip mismatch", codec)
	}

	// empty content survives every codec
	for _, codec := range []string{CodecNone, CodecZstd, CodecLz4} {
		body, err := encode(codec, nil)
		tassert(t, err == nil, "%s: %v", codec, err)
		got, err := decode(codec, body)
		tassert(t, err == nil, "%s: %v", codec, err)
		tassert(t, len(got) == 0, "%s: got %d bytes", codec, len(got))
	}
}

func TestCodecErrors(t *testing.T) {
	_, err := encode("gzip", nil)
	tassert(t, errors.Is(err, syscall.ENOSYS), "expected ENOSYS, got %v", err)
	_, err = decode("gzip", nil)
	tassert(t, errors.Is(err, syscall.ENOSYS), "expected ENOSYS, got %v", err)

	// garbage is an error, not short data
	_, err = decode(CodecZstd, mkbuf("not zstd at all"))
	tassert(t, err != nil, "expected zstd error")
	_, err = decode(CodecLz4, mkbuf("not lz4 at all"))
	tassert(t, err != nil, "expected lz4 error")
}
