package chunkreader

import (
	"bytes"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

// splitter splits one logical line into fields using RFC 4180 quoting.
// Its slices are reused from line to line.
type splitter struct {
	delim byte
	quote byte

	fields []string
	// starts holds the index within the line where each field begins
	starts []int
	buf    []byte
}

func newSplitter(delim, quote byte) *splitter {
	return &splitter{delim: delim, quote: quote}
}

// split returns the fields of line. offset is the stream offset of line[0]
// and is used to position parse errors. The returned slice is valid until
// the next call.
func (s *splitter) split(line []byte, offset int64) ([]string, error) {
	s.fields = s.fields[:0]
	s.starts = s.starts[:0]

	i := 0
	for {
		s.starts = append(s.starts, i)

		if i < len(line) && line[i] == s.quote {
			open := i
			i++
			s.buf = s.buf[:0]
			for {
				j := bytes.IndexByte(line[i:], s.quote)
				if j < 0 {
					return nil, parseError("unterminated quoted field", offset+int64(open))
				}
				s.buf = append(s.buf, line[i:i+j]...)
				i += j + 1
				if i < len(line) && line[i] == s.quote {
					s.buf = append(s.buf, s.quote)
					i++
					continue
				}
				break
			}
			if i < len(line) && line[i] != s.delim {
				return nil, parseError("unexpected character after quoted field", offset+int64(i-1))
			}
			s.fields = append(s.fields, string(s.buf))
		} else {
			end := bytes.IndexByte(line[i:], s.delim)
			if end < 0 {
				end = len(line)
			} else {
				end += i
			}
			field := line[i:end]
			if k := bytes.IndexByte(field, s.quote); k >= 0 {
				return nil, parseError("bare quote in unquoted field", offset+int64(i+k))
			}
			s.fields = append(s.fields, string(field))
			i = end
		}

		if i >= len(line) {
			return s.fields, nil
		}
		// line[i] is the delimiter
		i++
		if i == len(line) {
			s.starts = append(s.starts, i)
			s.fields = append(s.fields, "")
			return s.fields, nil
		}
	}
}

// start returns the index within the last split line of field n.
func (s *splitter) start(n int) int {
	return s.starts[n]
}

func parseError(msg string, offset int64) *errors.Error {
	return errors.Newf(errors.ErrorTypeParse, "%s at byte %d", msg, offset).
		WithDetail(errors.DetailOffset, offset)
}
