// Package json provides the JSON encoding used to emit rows and reports,
// backed by goccy/go-json.
package json

import (
	"bufio"
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// LineWriter writes one JSON document per line through a buffered writer.
// It is not safe for concurrent use.
type LineWriter struct {
	w     *bufio.Writer
	enc   *gojson.Encoder
	count int64
}

// NewLineWriter creates a LineWriter on w.
func NewLineWriter(w io.Writer) *LineWriter {
	bw := bufio.NewWriterSize(w, 64<<10)
	enc := gojson.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &LineWriter{w: bw, enc: enc}
}

// Write encodes v followed by a newline.
func (lw *LineWriter) Write(v interface{}) error {
	if err := lw.enc.Encode(v); err != nil {
		return err
	}
	lw.count++
	return nil
}

// Count returns the number of documents written.
func (lw *LineWriter) Count() int64 {
	return lw.count
}

// Flush writes buffered output to the underlying writer.
func (lw *LineWriter) Flush() error {
	return lw.w.Flush()
}
