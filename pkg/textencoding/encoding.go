// Package textencoding detects and decodes the text encoding of a staged
// export.
//
// Detection looks at a bounded prefix of the payload plus the transport's
// Content-Type and reports how sure it is:
//
//	Certain   a byte-order mark or an explicit charset label decided it
//	Likely    the prefix is consistent with exactly one candidate
//	Fallback  the prefix was ambiguous and UTF-8 was assumed
//
// Exports produced by bulk APIs are UTF-8 in the overwhelming majority of
// cases; Latin-1 style output from older endpoints is the other case that
// shows up in practice, which is why windows-1252 is the only single-byte
// candidate.
package textencoding

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

// Confidence describes how an Encoding was chosen.
type Confidence int

const (
	// Fallback means the prefix was ambiguous and the default was used.
	Fallback Confidence = iota
	// Likely means the prefix is consistent with the chosen encoding only.
	Likely
	// Certain means a BOM or an explicit label decided the encoding.
	Certain
)

func (c Confidence) String() string {
	switch c {
	case Certain:
		return "certain"
	case Likely:
		return "likely"
	default:
		return "fallback"
	}
}

// Canonical names of the encodings detection can produce without a label.
const (
	UTF8        = "utf-8"
	Windows1252 = "windows-1252"
)

// Encoding is the detected or configured encoding of one payload. The zero
// value is UTF-8 with Fallback confidence.
type Encoding struct {
	Name       string
	Confidence Confidence

	enc encoding.Encoding
}

// Default returns UTF-8 with Fallback confidence.
func Default() Encoding {
	return Encoding{Name: UTF8, Confidence: Fallback}
}

// IsUTF8 reports whether the payload can be read without transcoding.
func (e Encoding) IsUTF8() bool {
	return e.Name == "" || e.Name == UTF8
}

// Reader returns r decoded to UTF-8. UTF-8 input is returned as is.
func (e Encoding) Reader(r io.Reader) io.Reader {
	if e.IsUTF8() || e.enc == nil {
		return r
	}
	return transform.NewReader(r, e.enc.NewDecoder())
}

func (e Encoding) String() string {
	name := e.Name
	if name == "" {
		name = UTF8
	}
	return fmt.Sprintf("%s (%s)", name, e.Confidence)
}

// Lookup resolves an explicit encoding label such as "latin1" or
// "shift_jis". The result is Certain.
func Lookup(label string) (Encoding, error) {
	enc, name := charset.Lookup(strings.TrimSpace(label))
	if enc == nil {
		return Encoding{}, errors.Newf(errors.ErrorTypeConfig, "unknown encoding %q", label)
	}
	return Encoding{Name: name, Confidence: Certain, enc: enc}, nil
}

// Detect chooses the encoding of a payload from its first bytes and the
// Content-Type reported by the transport (may be empty).
func Detect(prefix []byte, contentType string) Encoding {
	if enc, name, certain := charset.DetermineEncoding(prefix, contentType); certain {
		return Encoding{Name: name, Confidence: Certain, enc: enc}
	}

	invalid, multibyte := scanUTF8(trimPartialRune(prefix))
	switch {
	case invalid == 0:
		return Encoding{Name: UTF8, Confidence: Likely}
	case multibyte == 0:
		return Encoding{Name: Windows1252, Confidence: Likely, enc: charmap.Windows1252}
	default:
		return Default()
	}
}

// scanUTF8 counts invalid bytes and valid multi-byte sequences in p.
func scanUTF8(p []byte) (invalid, multibyte int) {
	for i := 0; i < len(p); {
		if p[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(p[i:])
		if r == utf8.RuneError && size == 1 {
			invalid++
		} else {
			multibyte++
		}
		i += size
	}
	return invalid, multibyte
}

// trimPartialRune drops a multi-byte sequence cut off at the end of p.
func trimPartialRune(p []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		c := p[len(p)-i]
		if c < utf8.RuneSelf {
			return p
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(p[len(p)-i:]) {
				return p[:len(p)-i]
			}
			return p
		}
	}
	return p
}
