package chunk

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// CompressionAlgo names a byte-transform scheme applied to a chunk's payload.
// The algo actually used is recorded in the chunk header, so a chunk is
// decodable without external context.
type CompressionAlgo uint8

const (
	CompressionNone CompressionAlgo = iota
	CompressionGzipBestSpeed
	CompressionZstd
)

func (a CompressionAlgo) String() string {
	switch a {
	case CompressionNone:
		return "none"
	case CompressionGzipBestSpeed:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression resolves a compression scheme by name.
func ParseCompression(s string) (CompressionAlgo, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzipBestSpeed, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, errors.Errorf("unrecognized compression: %q", s)
	}
}

// shared stateless codecs; both are safe for concurrent use
var (
	zstdDecoder = func() *zstd.Decoder {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		return dec
	}()
	zstdEncoder = func() *zstd.Encoder {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		return enc
	}()
)

// compress attempts to compress src using algo. If the compressed data is bigger
// then no compression is used.
// compress returns the compression algorithm used (algo or NONE), the number of bytes written to dst
// or an error
func compress(algo CompressionAlgo, dst, src []byte) (CompressionAlgo, int, error) {
	switch algo {
	case CompressionNone:
		copy(dst, src)
		return CompressionNone, len(src), nil
	case CompressionGzipBestSpeed:
		lw := newLimitWriter(dst)
		err := func() (retErr error) {
			gw, err := gzip.NewWriterLevel(lw, gzip.BestSpeed)
			if err != nil {
				return errors.WithStack(err)
			}
			defer func() {
				if err := gw.Close(); retErr == nil {
					retErr = err
				}
			}()
			_, err = gw.Write(src)
			if err != nil {
				return errors.WithStack(err)
			}
			return errors.WithStack(gw.Close())
		}()
		if errors.Is(err, io.ErrShortWrite) {
			return compress(CompressionNone, dst, src)
		}
		return CompressionGzipBestSpeed, lw.pos, err
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(src, dst[:0])
		if len(out) > len(dst) || len(out) >= len(src) {
			// incompressible, EncodeAll grew past dst's backing array
			return compress(CompressionNone, dst, src)
		}
		return CompressionZstd, len(out), nil
	default:
		return 0, 0, errors.Errorf("unrecognized compression: %v", algo)
	}
}

// decompress returns the uncompressed form of src.
func decompress(algo CompressionAlgo, src []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return src, nil
	case CompressionGzipBestSpeed:
		gr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		return out, errors.WithStack(err)
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(src, nil)
		return out, errors.WithStack(err)
	default:
		return nil, errors.Errorf("unrecognized compression: %v", algo)
	}
}

type limitWriter struct {
	buf []byte
	pos int
}

func newLimitWriter(buf []byte) *limitWriter {
	return &limitWriter{buf: buf}
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.pos >= len(w.buf) {
		return 0, io.ErrShortWrite
	}
	n := copy(w.buf[w.pos:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	w.pos += n
	return n, nil
}
