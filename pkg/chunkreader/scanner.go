package chunkreader

import (
	"bytes"
	"io"
)

// scanState is the position of the scanner within the current field.
type scanState uint8

const (
	stFieldStart scanState = iota
	stUnquoted
	stQuoted
	// stAfterQuote follows a quote inside a quoted field: either the field
	// just closed or the next byte is the second half of an escaped quote.
	stAfterQuote
)

// Carry is the unterminated tail of a chunk, held until the next chunk
// completes it. Its buffer is reused for the lifetime of the iterator, so
// its capacity tracks the longest line seen rather than the file size.
type Carry struct {
	buf []byte
	// offset is the stream offset of buf[0]
	offset int64
	// state is the scanner state at the end of buf
	state scanState
}

// Len returns the number of carried bytes.
func (c *Carry) Len() int {
	return len(c.buf)
}

// Offset returns the stream offset of the first carried byte.
func (c *Carry) Offset() int64 {
	return c.offset
}

// InQuote reports whether the carried bytes end inside a quoted field.
func (c *Carry) InQuote() bool {
	return c.state == stQuoted
}

func (c *Carry) extend(p []byte, offset int64, state scanState) {
	if len(c.buf) == 0 {
		c.offset = offset
	}
	c.buf = append(c.buf, p...)
	c.state = state
}

func (c *Carry) reset() {
	c.buf = c.buf[:0]
	c.offset = 0
	c.state = stFieldStart
}

// scanTerminator returns the index of the first '\n' in buf that lies
// outside a quoted field, or -1, together with the scanner state at that
// point (at the end of buf when there is none). Only a quote at the start
// of a field opens a quoted field; a stray quote elsewhere is left for the
// field splitter to reject, so it cannot swallow the following lines.
func scanTerminator(buf []byte, state scanState, delim, quote byte) (int, scanState) {
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		switch state {
		case stQuoted:
			j := bytes.IndexByte(buf[i:], quote)
			if j < 0 {
				return -1, stQuoted
			}
			i += j
			state = stAfterQuote
		case stAfterQuote:
			switch c {
			case quote:
				state = stQuoted
			case delim:
				state = stFieldStart
			case '\n':
				return i, stFieldStart
			default:
				state = stUnquoted
			}
		case stFieldStart:
			switch c {
			case quote:
				state = stQuoted
			case delim:
			case '\n':
				return i, stFieldStart
			default:
				state = stUnquoted
			}
		default:
			switch c {
			case delim:
				state = stFieldStart
			case '\n':
				return i, stFieldStart
			}
		}
	}
	return -1, state
}

// nulStripper drops NUL bytes from the underlying stream.
type nulStripper struct {
	r io.Reader
}

func (s nulStripper) Read(p []byte) (int, error) {
	for {
		n, err := s.r.Read(p)
		k := compactNUL(p[:n])
		if k > 0 || err != nil || n == 0 {
			return k, err
		}
	}
}

// compactNUL removes NUL bytes from p in place and returns the new length.
func compactNUL(p []byte) int {
	i := bytes.IndexByte(p, 0)
	if i < 0 {
		return len(p)
	}
	k := i
	for _, c := range p[i+1:] {
		if c != 0 {
			p[k] = c
			k++
		}
	}
	return k
}
