// Package download stages a completed export result on local storage.
//
// Fetch streams the payload to a staging file through one fixed-size copy
// buffer, so memory use does not depend on the size of the result. The
// encoding is detected from a bounded prefix captured while copying.
//
// Failures are classified with pkg/errors:
//
//	ErrorTypeRemoteResult  the remote refused the result before any byte was staged
//	ErrorTypeTransfer      the network failed while the payload was streaming
//	ErrorTypeStorage       the local disk failed while staging
//	ErrorTypeValidation    the result reference is unusable
//
// Whatever the failure, no staging file is left behind.
package download

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
	"github.com/ajitpratap0/nebula-bulk/pkg/metrics"
	"github.com/ajitpratap0/nebula-bulk/pkg/observability"
	"github.com/ajitpratap0/nebula-bulk/pkg/pool"
	"github.com/ajitpratap0/nebula-bulk/pkg/staging"
	"github.com/ajitpratap0/nebula-bulk/pkg/textencoding"
)

// ResultRef locates a completed export result: an http(s) URL, an
// s3://bucket/key or a gs://bucket/object reference.
type ResultRef string

// URL parses the reference and checks it names something fetchable.
func (r ResultRef) URL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(string(r)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid result reference")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation, "result reference %q needs a scheme and a host", redact(u))
	}
	return u, nil
}

// String returns the reference without query string or credentials.
func (r ResultRef) String() string {
	u, err := url.Parse(string(r))
	if err != nil {
		return "<invalid>"
	}
	return redact(u)
}

func redact(u *url.URL) string {
	v := *u
	v.User = nil
	v.RawQuery = ""
	v.Fragment = ""
	return v.String()
}

// bucketAndKey splits s3:// and gs:// references.
func bucketAndKey(u *url.URL) (string, string, error) {
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.Newf(errors.ErrorTypeValidation, "result reference %q needs a bucket and an object", redact(u))
	}
	return u.Host, key, nil
}

// Payload is an open remote result. Body is owned by the caller.
type Payload struct {
	Body            io.ReadCloser
	ContentType     string
	ContentEncoding string
	// Size is the advertised length, -1 when unknown
	Size int64
}

// Fetcher opens the payload behind a reference. Implementations report a
// remote refusal as ErrorTypeRemoteResult and any transport failure as
// ErrorTypeTransfer.
type Fetcher interface {
	Open(ctx context.Context, u *url.URL) (*Payload, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, u *url.URL) (*Payload, error)

// Open calls f.
func (f FetcherFunc) Open(ctx context.Context, u *url.URL) (*Payload, error) {
	return f(ctx, u)
}

// Downloader stages result payloads. It is safe for concurrent use; each
// Fetch owns its own staging file and copy buffer.
type Downloader struct {
	logger         *zap.Logger
	tempDir        string
	copyBufferSize int
	sniffSize      int

	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// New creates a Downloader with no fetchers registered.
func New(cfg config.DownloadConfig, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CopyBufferSize <= 0 {
		cfg.CopyBufferSize = 64 << 10
	}
	if cfg.SniffSize <= 0 {
		cfg.SniffSize = 64 << 10
	}
	return &Downloader{
		logger:         logger.With(zap.String("component", "downloader")),
		tempDir:        cfg.TempDir,
		copyBufferSize: cfg.CopyBufferSize,
		sniffSize:      cfg.SniffSize,
		fetchers:       make(map[string]Fetcher),
	}
}

// NewFromConfig creates a Downloader with the HTTP, S3 and GCS fetchers
// registered. Cloud clients are built on first use.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) *Downloader {
	d := New(cfg.Download, logger)

	httpFetcher := NewHTTPFetcher(cfg.HTTP, d.logger)
	d.Register("http", httpFetcher)
	d.Register("https", httpFetcher)

	d.Register("s3", lazy(func(ctx context.Context) (Fetcher, error) {
		return NewS3Fetcher(ctx, cfg.S3)
	}))
	d.Register("gs", lazy(func(ctx context.Context) (Fetcher, error) {
		return NewGCSFetcher(ctx, cfg.GCS)
	}))

	return d
}

// Register installs f for references with the given scheme.
func (d *Downloader) Register(scheme string, f Fetcher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetchers[strings.ToLower(scheme)] = f
}

func (d *Downloader) fetcher(scheme string) (Fetcher, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.fetchers[scheme]
	return f, ok
}

// Fetch streams the payload behind ref to a new staging file and detects
// its encoding. On success the caller owns the TempFile and must Remove it.
func (d *Downloader) Fetch(ctx context.Context, ref ResultRef) (tf *staging.TempFile, enc textencoding.Encoding, err error) {
	u, err := ref.URL()
	if err != nil {
		return nil, enc, err
	}
	f, ok := d.fetcher(u.Scheme)
	if !ok {
		return nil, enc, errors.Newf(errors.ErrorTypeValidation, "unsupported result reference scheme %q", u.Scheme).
			WithDetail(errors.DetailResultRef, ref.String())
	}

	ctx, span := observability.StartSpan(ctx, "download.Fetch",
		attribute.String("result.scheme", u.Scheme))
	timer := metrics.NewTimer(u.Scheme)
	var written int64
	defer func() {
		span.SetAttribute("result.bytes", written)
		span.End(err)
		metrics.ObserveDownload(u.Scheme, outcome(err), written, timer.Stop())
	}()

	payload, err := f.Open(ctx, u)
	if err != nil {
		return nil, enc, withRef(err, ref)
	}
	defer payload.Body.Close()

	body, err := decodeBody(payload)
	if err != nil {
		return nil, enc, withRef(err, ref)
	}
	defer body.Close()

	tf, err = staging.Create(d.tempDir)
	if err != nil {
		return nil, enc, err
	}

	prefix, written, err := d.stage(ctx, tf, body)
	if err == nil {
		err = tf.Commit()
	}
	if err != nil {
		if rerr := tf.Remove(); rerr != nil {
			d.logger.Warn("failed to remove partial staging file", zap.String("path", tf.Path()), zap.Error(rerr))
		}
		return nil, enc, withRef(err, ref)
	}

	enc = textencoding.Detect(prefix, payload.ContentType)
	span.SetAttribute("result.encoding", enc.Name)

	d.logger.Info("result staged",
		zap.String("result_ref", ref.String()),
		zap.String("path", tf.Path()),
		zap.Int64("bytes", written),
		zap.Int64("declared_size", payload.Size),
		zap.String("content_encoding", payload.ContentEncoding),
		zap.Stringer("encoding", enc),
		zap.Duration("duration", timer.Stop()))

	return tf, enc, nil
}

// stage copies src into tf with one pooled buffer and returns the first
// sniffSize bytes.
func (d *Downloader) stage(ctx context.Context, tf *staging.TempFile, src io.Reader) ([]byte, int64, error) {
	buf := pool.GlobalBufferPool.Get(d.copyBufferSize)
	defer pool.GlobalBufferPool.Put(buf)

	prefix := make([]byte, 0, d.sniffSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return nil, written, errors.Wrap(err, errors.ErrorTypeTransfer, "download cancelled")
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			if room := cap(prefix) - len(prefix); room > 0 {
				prefix = append(prefix, buf[:min(nr, room)]...)
			}
			nw, werr := tf.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return nil, written, werr
			}
		}
		if rerr == io.EOF {
			return prefix, written, nil
		}
		if rerr != nil {
			return nil, written, errors.Wrap(rerr, errors.ErrorTypeTransfer, "failed to read result payload").
				WithDetail("bytes_received", written)
		}
	}
}

func withRef(err error, ref ResultRef) error {
	var e *errors.Error
	if errors.As(err, &e) {
		if _, ok := e.Details[errors.DetailResultRef]; !ok {
			e.WithDetail(errors.DetailResultRef, ref.String())
		}
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeTransfer, "failed to fetch result").
		WithDetail(errors.DetailResultRef, ref.String())
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if t := errors.TypeOf(err); t != "" {
		return string(t)
	}
	return "unknown"
}

// lazyFetcher builds its fetcher on first use so that credentials for a
// cloud provider are only required when one of its references is fetched.
// Only a successful build is kept; a failed one is retried on the next Open.
type lazyFetcher struct {
	build func(ctx context.Context) (Fetcher, error)

	mu sync.Mutex
	f  Fetcher
}

func lazy(build func(ctx context.Context) (Fetcher, error)) *lazyFetcher {
	return &lazyFetcher{build: build}
}

func (l *lazyFetcher) Open(ctx context.Context, u *url.URL) (*Payload, error) {
	f, err := l.fetcher(ctx, u.Scheme)
	if err != nil {
		return nil, err
	}
	return f.Open(ctx, u)
}

func (l *lazyFetcher) fetcher(ctx context.Context, scheme string) (Fetcher, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return l.f, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransfer, fmt.Sprintf("%s client not created", scheme))
	}

	// The client outlives this request.
	f, err := l.build(context.WithoutCancel(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTransfer, fmt.Sprintf("%s client not created", scheme))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create %s client", scheme))
	}
	l.f = f
	return f, nil
}
