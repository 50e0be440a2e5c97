package db

import (
	"bytes"
	"fmt"
	"io"
	"syscall"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// atom body codecs
const (
	CodecNone = "none"
	CodecZstd = "zstd"
	CodecLz4  = "lz4"
)

// EncodeAll and DecodeAll are safe for concurrent use, so one of each
// serves the whole process.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func checkCodec(codec string) error {
	switch codec {
	case CodecNone, CodecZstd, CodecLz4:
		return nil
	}
	return fmt.Errorf("%w: codec %s", syscall.ENOSYS, codec)
}

func encode(codec string, buf []byte) (body []byte, err error) {
	switch codec {
	case CodecNone:
		return buf, nil
	case CodecZstd:
		return zstdEncoder.EncodeAll(buf, nil), nil
	case CodecLz4:
		var out bytes.Buffer
		w := lz4.NewWriter(&out)
		_, err = w.Write(buf)
		if err != nil {
			return
		}
		err = w.Close()
		if err != nil {
			return
		}
		return out.Bytes(), nil
	}
	return nil, checkCodec(codec)
}

func decode(codec string, body []byte) (buf []byte, err error) {
	switch codec {
	case CodecNone:
		return body, nil
	case CodecZstd:
		return zstdDecoder.DecodeAll(body, nil)
	case CodecLz4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(body)))
	}
	return nil, checkCodec(codec)
}
