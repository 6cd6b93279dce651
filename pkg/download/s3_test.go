package download

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
	"github.com/ajitpratap0/nebula-bulk/pkg/textencoding"
)

type mockS3Client struct {
	GetObjectFunc func(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	calls         []*s3.GetObjectInput
}

func (m *mockS3Client) GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.calls = append(m.calls, input)
	return m.GetObjectFunc(ctx, input, opts...)
}

func TestS3FetcherThroughDownloader(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = io.WriteString(gw, accountCSV)
	require.NoError(t, gw.Close())

	m := &mockS3Client{
		GetObjectFunc: func(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body:            io.NopCloser(bytes.NewReader(gz.Bytes())),
				ContentLength:   aws.Int64(int64(gz.Len())),
				ContentType:     aws.String("text/csv; charset=utf-8"),
				ContentEncoding: aws.String("gzip"),
			}, nil
		},
	}

	d, _ := newTestDownloader(t)
	d.Register("s3", NewS3FetcherWithClient(m))

	tf, enc, err := d.Fetch(context.Background(), "s3://exports/salesforce/Account/part-0.csv")
	require.NoError(t, err)
	defer tf.Remove()

	require.Len(t, m.calls, 1)
	assert.Equal(t, "exports", aws.ToString(m.calls[0].Bucket))
	assert.Equal(t, "salesforce/Account/part-0.csv", aws.ToString(m.calls[0].Key))
	assert.Equal(t, accountCSV, readStaged(t, tf.Path()))
	assert.Equal(t, "utf-8", enc.Name)
	assert.Equal(t, textencoding.Certain, enc.Confidence)
}

func TestS3FetcherErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorType
	}{
		{"no such key", &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}, errors.ErrorTypeRemoteResult},
		{"network", io.ErrUnexpectedEOF, errors.ErrorTypeTransfer},
		{"cancelled", context.Canceled, errors.ErrorTypeTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewS3FetcherWithClient(&mockS3Client{
				GetObjectFunc: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return nil, tt.err
				},
			})
			u, _ := url.Parse("s3://exports/key.csv")
			_, err := f.Open(context.Background(), u)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.TypeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestS3FetcherNeedsKey(t *testing.T) {
	f := NewS3FetcherWithClient(&mockS3Client{})
	u, _ := url.Parse("s3://exports/")
	_, err := f.Open(context.Background(), u)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.True(t, strings.Contains(err.Error(), "bucket and an object"))
}
