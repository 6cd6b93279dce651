// Package chunkreader parses a staged delimited-text export into rows
// while holding only a fixed-size chunk of it in memory.
//
// The source is read in chunks of Options.ChunkSize bytes into one buffer
// that is reused for every read. Lines are split on '\n' terminators that
// lie outside quoted fields; the unterminated tail of a chunk is kept as a
// Carry and completed by the next chunk. Resident memory is therefore the
// chunk, the carry (bounded by the longest line) and the current row,
// whatever the size of the file.
//
// The first non-blank line is the header. Each following line becomes a
// Row keyed by the header's column names:
//
//	it, err := chunkreader.Open(tf, enc, chunkreader.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for {
//	    row, err := it.Next()
//	    if err == iterator.Done {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
//
// Rows with fewer fields than the header omit the trailing columns (or map
// them to "" with config.MissingFieldsEmpty). Rows with more fields than the
// header, and malformed quoting, end iteration with an
// errors.ErrorTypeParse error whose offset is the position, in the decoded
// stream, of the offending byte. A failure reading the source ends
// iteration with errors.ErrorTypeRead.
package chunkreader

import (
	"bytes"
	"io"
	"iter"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
	"github.com/ajitpratap0/nebula-bulk/pkg/metrics"
	"github.com/ajitpratap0/nebula-bulk/pkg/observability"
	"github.com/ajitpratap0/nebula-bulk/pkg/pool"
	"github.com/ajitpratap0/nebula-bulk/pkg/staging"
	"github.com/ajitpratap0/nebula-bulk/pkg/textencoding"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// RowIterator yields the rows of one source in order. It is not safe for
// concurrent use.
type RowIterator struct {
	opts   Options
	logger *zap.Logger
	span   *observability.Span

	src    io.Reader
	closer io.Closer

	chunk      []byte
	start, end int
	// base is the stream offset of chunk[0]
	base int64
	eof  bool

	carry     Carry
	fromCarry bool
	cursor    int64

	split  *splitter
	header []string
	rows   int64
	chunks int64

	done   bool
	err    error
	closed bool
}

// Open starts reading a committed staging file decoded with enc. The
// iterator closes the file when it is exhausted, fails or is closed; the
// staging file itself stays on disk until its owner removes it.
func Open(tf *staging.TempFile, enc textencoding.Encoding, opts Options) (*RowIterator, error) {
	f, err := tf.Open()
	if err != nil {
		return nil, err
	}
	it := newRowIterator(enc.Reader(f), f, opts)
	it.span.SetAttribute("reader.encoding", enc.Name)
	it.span.SetAttribute("reader.bytes", tf.Size())
	return it, nil
}

// OpenFile starts reading the file at path. Used for files that are not
// owned by a staging.TempFile.
func OpenFile(path string, enc textencoding.Encoding, opts Options) (*RowIterator, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is chosen by the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRead, "failed to open export file").
			WithDetail(errors.DetailPath, path)
	}
	return newRowIterator(enc.Reader(f), f, opts), nil
}

// NewRowIterator reads rows from an already decoded UTF-8 source. src is
// not closed by the iterator.
func NewRowIterator(src io.Reader, opts Options) *RowIterator {
	return newRowIterator(src, nil, opts)
}

func newRowIterator(src io.Reader, closer io.Closer, opts Options) *RowIterator {
	opts = opts.withDefaults()
	if opts.StripNullBytes {
		src = nulStripper{r: src}
	}

	_, span := observability.StartSpan(opts.Context, "chunkreader.Read",
		attribute.Int("reader.chunk_size", opts.ChunkSize))

	return &RowIterator{
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "chunk_reader")),
		span:   span,
		src:    src,
		closer: closer,
		chunk:  pool.GlobalBufferPool.Get(opts.ChunkSize),
		split:  newSplitter(opts.Delimiter, opts.Quote),
	}
}

// Next returns the next row. It returns iterator.Done once the source is
// exhausted. After Done, an error or Close, every call returns the same
// result again.
func (it *RowIterator) Next() (Row, error) {
	if it.done {
		return nil, it.err
	}
	if it.header == nil {
		err := it.readHeader()
		if err == io.EOF {
			return nil, it.finish(iterator.Done)
		}
		if err != nil {
			return nil, it.finish(err)
		}
	}

	for {
		line, offset, err := it.nextLine()
		if err == io.EOF {
			return nil, it.finish(iterator.Done)
		}
		if err != nil {
			return nil, it.finish(err)
		}
		line = trimCR(line)
		if len(line) == 0 {
			continue
		}

		fields, err := it.split.split(line, offset)
		if err != nil {
			return nil, it.finish(err)
		}
		if len(fields) > len(it.header) {
			extra := it.split.start(len(it.header))
			return nil, it.finish(
				parseError("row has more fields than the header", offset+int64(extra)).
					WithDetail("fields", len(fields)).
					WithDetail("columns", len(it.header)))
		}

		row := make(Row, len(it.header))
		for i, v := range fields {
			row[it.header[i]] = v
		}
		if it.opts.MissingFields == config.MissingFieldsEmpty {
			for _, col := range it.header[len(fields):] {
				row[col] = ""
			}
		}

		it.rows++
		metrics.RowsRead.Inc()
		return row, nil
	}
}

// All returns the remaining rows as a sequence. The iterator is closed
// when the sequence ends, including when the consumer stops early. A
// terminal error is yielded once with a nil row.
func (it *RowIterator) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		defer it.Close()
		for {
			row, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Header returns a copy of the column names. It is nil until the first
// call to Next, and stays nil for an empty source.
func (it *RowIterator) Header() []string {
	if it.header == nil {
		return nil
	}
	h := make([]string, len(it.header))
	copy(h, it.header)
	return h
}

// Offset returns the stream offset just past the last line consumed.
func (it *RowIterator) Offset() int64 {
	return it.cursor
}

// RowsRead returns the number of rows yielded so far.
func (it *RowIterator) RowsRead() int64 {
	return it.rows
}

// Close releases the iterator. Later calls to Next return iterator.Done
// unless iteration had already ended with an error.
func (it *RowIterator) Close() error {
	if !it.done {
		it.finish(iterator.Done)
	}
	return it.release()
}

func (it *RowIterator) readHeader() error {
	for {
		line, offset, err := it.nextLine()
		if err != nil {
			// empty source: no header, no rows
			return err
		}
		if offset == 0 && bytes.HasPrefix(line, utf8BOM) {
			line = line[len(utf8BOM):]
			offset += int64(len(utf8BOM))
		}
		line = trimCR(line)
		if len(line) == 0 {
			continue
		}

		fields, err := it.split.split(line, offset)
		if err != nil {
			return err
		}
		it.header = make([]string, len(fields))
		copy(it.header, fields)
		it.logger.Debug("header parsed", zap.Strings("columns", it.header))
		it.span.AddEvent("header parsed",
			attribute.Int("reader.columns", len(fields)),
			attribute.Int64("reader.offset", offset))
		return nil
	}
}

// nextLine returns the next logical line without its terminator and the
// stream offset of its first byte. The line aliases the chunk or the carry
// and is valid until the next call. io.EOF means no line remains.
func (it *RowIterator) nextLine() ([]byte, int64, error) {
	if it.fromCarry {
		it.carry.reset()
		it.fromCarry = false
	}

	for {
		if it.start < it.end {
			window := it.chunk[it.start:it.end]
			windowOffset := it.base + int64(it.start)

			idx, state := scanTerminator(window, it.carry.state, it.opts.Delimiter, it.opts.Quote)
			if idx >= 0 {
				it.start += idx + 1
				it.cursor = windowOffset + int64(idx) + 1
				if it.carry.Len() == 0 {
					return window[:idx], windowOffset, nil
				}
				it.carry.extend(window[:idx], windowOffset, state)
				it.fromCarry = true
				return it.carry.buf, it.carry.offset, nil
			}

			it.carry.extend(window, windowOffset, state)
			it.start = it.end
			metrics.ObserveCarry(it.carry.Len())
		}

		if it.eof {
			if it.carry.Len() == 0 {
				return nil, 0, io.EOF
			}
			it.cursor = it.carry.offset + int64(it.carry.Len())
			it.fromCarry = true
			return it.carry.buf, it.carry.offset, nil
		}

		if err := it.fill(); err != nil {
			return nil, 0, err
		}
	}
}

// fill reads the next chunk into the reused buffer.
func (it *RowIterator) fill() error {
	if err := it.opts.Context.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRead, "read cancelled").
			WithDetail(errors.DetailOffset, it.base+int64(it.end))
	}

	n, err := it.src.Read(it.chunk)
	it.base += int64(it.end)
	it.start, it.end = 0, n
	if n > 0 {
		it.chunks++
		metrics.ChunksRead.Inc()
	}

	switch {
	case err == io.EOF:
		it.eof = true
	case err != nil:
		it.start = it.end
		return errors.Wrap(err, errors.ErrorTypeRead, "failed to read export").
			WithDetail(errors.DetailOffset, it.base)
	}
	return nil
}

// finish records the terminal result and releases resources. It returns
// err for convenience.
func (it *RowIterator) finish(err error) error {
	if it.done {
		return it.err
	}
	it.done = true
	it.err = err

	if err != iterator.Done {
		metrics.ReadErrors.WithLabelValues(string(errors.TypeOf(err))).Inc()
		it.logger.Warn("row iteration failed",
			zap.Int64("rows", it.rows),
			zap.Int64("offset", it.cursor),
			zap.Error(err))
	} else {
		it.logger.Debug("row iteration finished",
			zap.Int64("rows", it.rows),
			zap.Int64("chunks", it.chunks),
			zap.Int64("bytes", it.base+int64(it.end)))
	}

	it.span.SetAttribute("reader.rows", it.rows)
	it.span.SetAttribute("reader.chunks", it.chunks)
	if err == iterator.Done {
		it.span.End(nil)
	} else {
		it.span.End(err)
	}

	_ = it.release()
	return err
}

func (it *RowIterator) release() error {
	if it.closed {
		return nil
	}
	it.closed = true

	pool.GlobalBufferPool.Put(it.chunk)
	it.chunk = nil
	it.carry = Carry{}
	it.start, it.end = 0, 0

	if it.closer != nil {
		if err := it.closer.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeRead, "failed to close export file")
		}
	}
	return nil
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
