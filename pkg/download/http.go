package download

import (
	"context"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-bulk/pkg/clients"
	"github.com/ajitpratap0/nebula-bulk/pkg/config"
	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
)

// maxErrorExcerpt bounds how much of a failed response body is kept.
const maxErrorExcerpt = 1 << 10

// HTTPFetcher fetches http(s) result references.
type HTTPFetcher struct {
	client *clients.HTTPClient
}

// NewHTTPFetcher creates a fetcher with its own HTTP client.
func NewHTTPFetcher(cfg config.HTTPConfig, logger *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{client: clients.NewHTTPClient(cfg, logger)}
}

// NewHTTPFetcherWithClient creates a fetcher around an existing client.
func NewHTTPFetcherWithClient(client *clients.HTTPClient) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Open issues the GET. A non-2xx status is reported as a remote result
// error carrying the status code and the start of the response body.
func (f *HTTPFetcher) Open(ctx context.Context, u *url.URL) (*Payload, error) {
	resp, err := f.client.Get(ctx, u.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransfer, "result request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
		_ = resp.Body.Close()
		return nil, errors.Newf(errors.ErrorTypeRemoteResult, "result request returned %s", resp.Status).
			WithDetail(errors.DetailStatusCode, resp.StatusCode).
			WithDetail("body", strings.TrimSpace(string(excerpt)))
	}

	return &Payload{
		Body:            resp.Body,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		Size:            resp.ContentLength,
	}, nil
}

// Close releases the client's idle connections.
func (f *HTTPFetcher) Close() error {
	return f.client.Close()
}

var _ Fetcher = (*HTTPFetcher)(nil)

// StatusCode returns the HTTP status recorded on a remote result error.
func StatusCode(err error) (int, bool) {
	var e *errors.Error
	if !errors.As(err, &e) {
		return 0, false
	}
	code, ok := e.Details[errors.DetailStatusCode].(int)
	return code, ok
}
