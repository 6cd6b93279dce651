package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

const sample = "Id,Name\n001,\"Acme, Inc.\"\n002,Globex\n"

func encode(t *testing.T, alg Algorithm, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(alg, &buf)
	require.NoError(t, err)
	_, err = io.WriteString(w, data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	payload := strings.Repeat(sample, 2000)
	for _, alg := range []Algorithm{None, Gzip, Deflate, Zstd, Snappy, S2, LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			encoded := encode(t, alg, payload)
			if alg != None {
				assert.Less(t, len(encoded), len(payload))
			}

			r, err := NewReader(alg, bytes.NewReader(encoded))
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, payload, string(got))
		})
	}
}

func TestRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, _ = io.WriteString(fw, sample)
	require.NoError(t, fw.Close())

	r, err := NewReader(Deflate, &buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, sample, string(got))
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"", None},
		{"identity", None},
		{" GZIP ", Gzip},
		{"x-gzip", Gzip},
		{"deflate", Deflate},
		{"zstd", Zstd},
		{"snappy", Snappy},
		{"s2", S2},
		{"x-lz4", LZ4},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseAlgorithm("br")
	assert.True(t, errors.IsType(err, errors.ErrorTypeRemoteResult))
}

func TestHeaderErrors(t *testing.T) {
	_, err := NewReader(Gzip, strings.NewReader("not gzip at all"))
	require.Error(t, err)
	assert.True(t, IsHeaderError(err))

	_, err = NewReader(Gzip, strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, IsHeaderError(err))

	assert.False(t, IsHeaderError(io.ErrClosedPipe))
}

func TestTruncatedHeaderIsNotHeaderError(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(Gzip, &buf)
	require.NoError(t, err)
	_, err = io.WriteString(w, "Id\n1\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = NewReader(Gzip, bytes.NewReader(buf.Bytes()[:4]))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, IsHeaderError(err))
}

func TestCorruptZstd(t *testing.T) {
	r, err := NewReader(Zstd, strings.NewReader("definitely not zstd"))
	if err == nil {
		_, err = io.ReadAll(r)
	}
	assert.Error(t, err)
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := NewReader("rot13", strings.NewReader(""))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	_, err = NewWriter("rot13", io.Discard)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
