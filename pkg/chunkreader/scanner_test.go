package chunkreader

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

func TestScanTerminator(t *testing.T) {
	tests := []struct {
		name  string
		buf   string
		state scanState
		idx   int
		want  scanState
	}{
		{"plain", "a,b\nc", stFieldStart, 3, stFieldStart},
		{"none", "a,b", stFieldStart, -1, stUnquoted},
		{"quoted newline", "\"a\nb\",c\nd", stFieldStart, 7, stFieldStart},
		{"open quote at end", "a,\"b\nc", stFieldStart, -1, stQuoted},
		{"continue quoted", "b\nc\",d\ne", stQuoted, 6, stFieldStart},
		{"escaped quote split", "\"x\nz", stAfterQuote, -1, stQuoted},
		{"closing quote split", ",x\n", stAfterQuote, 2, stFieldStart},
		{"bare quote ignored", "ab\"c\nd", stFieldStart, 4, stFieldStart},
		{"trailing delimiter", "a,", stFieldStart, -1, stFieldStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, state := scanTerminator([]byte(tt.buf), tt.state, ',', '"')
			assert.Equal(t, tt.idx, idx)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestCarry(t *testing.T) {
	var c Carry
	c.extend([]byte("ab"), 10, stQuoted)
	c.extend([]byte("cd"), 12, stQuoted)
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, int64(10), c.Offset())
	assert.True(t, c.InQuote())

	capBefore := cap(c.buf)
	c.reset()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.InQuote())
	assert.Equal(t, capBefore, cap(c.buf))
}

func TestNulStripper(t *testing.T) {
	src := []byte("\x00\x00a\x00b\x00\x00\x00c\x00")
	out, err := io.ReadAll(nulStripper{r: iotest.OneByteReader(bytes.NewReader(src))})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))

	out, err = io.ReadAll(nulStripper{r: strings.NewReader("no nuls")})
	require.NoError(t, err)
	assert.Equal(t, "no nuls", string(out))
}

func TestSplitter(t *testing.T) {
	tests := []struct {
		line   string
		fields []string
	}{
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{",", []string{"", ""}},
		{"a,", []string{"a", ""}},
		{",a", []string{"", "a"}},
		{`""`, []string{""}},
		{`"a,b",c`, []string{"a,b", "c"}},
		{`"a""b"`, []string{`a"b`}},
		{"\"a\nb\",", []string{"a\nb", ""}},
	}

	s := newSplitter(',', '"')
	for _, tt := range tests {
		fields, err := s.split([]byte(tt.line), 0)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.fields, fields, tt.line)
	}
}

func TestSplitterErrors(t *testing.T) {
	tests := []struct {
		line   string
		offset int64
	}{
		{`"abc`, 100},
		{`a,"b"c`, 104},
		{`a,b"c`, 103},
	}

	s := newSplitter(',', '"')
	for _, tt := range tests {
		_, err := s.split([]byte(tt.line), 100)
		require.Error(t, err, tt.line)
		assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
		off, ok := errors.Offset(err)
		require.True(t, ok)
		assert.Equal(t, tt.offset, off, tt.line)
	}
}

func TestSplitterStarts(t *testing.T) {
	s := newSplitter(',', '"')
	_, err := s.split([]byte(`a,"bc",d`), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.start(0))
	assert.Equal(t, 2, s.start(1))
	assert.Equal(t, 7, s.start(2))
}
