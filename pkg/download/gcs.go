package download

import (
	"context"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

// GCSFetcher fetches gs://bucket/object result references.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher creates a storage client. Without a credentials file the
// application default credentials are used.
func NewGCSFetcher(ctx context.Context, cfg config.GCSConfig) (*GCSFetcher, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.WithoutAuthentication {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create storage client")
	}
	return &GCSFetcher{client: client}, nil
}

// Open opens a reader on the object. Objects stored with gzip
// Content-Encoding are read as stored and decoded by the downloader.
func (f *GCSFetcher) Open(ctx context.Context, u *url.URL) (*Payload, error) {
	bucket, object, err := bucketAndKey(u)
	if err != nil {
		return nil, err
	}

	r, err := f.client.Bucket(bucket).Object(object).ReadCompressed(true).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(err)
	}

	return &Payload{
		Body:            r,
		ContentType:     r.Attrs.ContentType,
		ContentEncoding: r.Attrs.ContentEncoding,
		Size:            r.Attrs.Size,
	}, nil
}

// Close closes the storage client.
func (f *GCSFetcher) Close() error {
	return f.client.Close()
}

func classifyGCSError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return errors.Wrap(err, errors.ErrorTypeRemoteResult, "gcs result does not exist")
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return errors.Wrap(err, errors.ErrorTypeRemoteResult, "gcs refused the result").
			WithDetail(errors.DetailStatusCode, apiErr.Code)
	}
	return errors.Wrap(err, errors.ErrorTypeTransfer, "gcs request failed")
}

var _ Fetcher = (*GCSFetcher)(nil)
