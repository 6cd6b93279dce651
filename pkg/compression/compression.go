// Package compression provides streaming decoders for the content codings a
// result payload can arrive in.
//
// # Overview
//
// Result refs are served by web servers and object stores that may apply a
// Content-Encoding to the payload. The downloader undoes it while the body
// streams to disk, so a compressed result never has to fit in memory:
//
//	alg, err := compression.ParseAlgorithm(resp.Header.Get("Content-Encoding"))
//	if err != nil {
//	    return err
//	}
//	body, err := compression.NewReader(alg, resp.Body)
//
// # Algorithms
//
//   - Gzip, Deflate: HTTP content codings (deflate accepts zlib-wrapped and raw data)
//   - Zstd: RFC 8878 content coding, decoded with a bounded window
//   - Snappy, S2, LZ4: framed formats found on exported objects in S3/GCS
//
// NewWriter produces the same formats and is what tests and tooling use to
// build fixtures.
package compression

import (
	"bufio"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

// Algorithm is a content coding.
type Algorithm string

const (
	None    Algorithm = "identity"
	Gzip    Algorithm = "gzip"
	Deflate Algorithm = "deflate"
	Zstd    Algorithm = "zstd"
	Snappy  Algorithm = "x-snappy-framed"
	S2      Algorithm = "s2"
	LZ4     Algorithm = "lz4"
)

// MaxZstdWindow bounds the zstd decoder window, and with it the decoder's
// memory.
const MaxZstdWindow = 8 << 20

var aliases = map[string]Algorithm{
	"":                None,
	"identity":        None,
	"gzip":            Gzip,
	"x-gzip":          Gzip,
	"deflate":         Deflate,
	"zstd":            Zstd,
	"snappy":          Snappy,
	"x-snappy-framed": Snappy,
	"s2":              S2,
	"lz4":             LZ4,
	"x-lz4":           LZ4,
}

// ParseAlgorithm maps a Content-Encoding value to an Algorithm. Unknown
// codings return an ErrorTypeRemoteResult error: the remote produced a
// payload this module cannot read.
func ParseAlgorithm(contentEncoding string) (Algorithm, error) {
	name := strings.ToLower(strings.TrimSpace(contentEncoding))
	if alg, ok := aliases[name]; ok {
		return alg, nil
	}
	return "", errors.Newf(errors.ErrorTypeRemoteResult, "unsupported content encoding %q", name).
		WithDetail("content_encoding", name)
}

// NewReader returns a reader that decodes r. Closing it does not close r.
// Formats with an eager header (gzip, zlib) read it here, so header errors
// surface from NewReader unwrapped.
func NewReader(alg Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Deflate:
		br := bufio.NewReader(r)
		hdr, err := br.Peek(2)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if isZlibHeader(hdr) {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	case Zstd:
		d, err := zstd.NewReader(r,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
			zstd.WithDecoderMaxWindow(MaxZstdWindow))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown algorithm %q", alg)
	}
}

// NewWriter returns a writer encoding to w. Close flushes the encoder but
// does not close w.
func NewWriter(alg Algorithm, w io.Writer) (io.WriteCloser, error) {
	switch alg {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Deflate:
		return zlib.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		return s2.NewWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown algorithm %q", alg)
	}
}

// IsHeaderError reports whether err is a malformed stream header or an
// empty body, as opposed to a failure of the underlying reader. A header cut
// short (io.ErrUnexpectedEOF) is a failure to receive it, not a bad header.
func IsHeaderError(err error) bool {
	return errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, zlib.ErrHeader) ||
		err == io.EOF
}

func isZlibHeader(h []byte) bool {
	if len(h) < 2 {
		return false
	}
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
