// Package bulkexport turns a completed export result into a stream of rows.
//
// A Pipeline fetches the result to a staging file, opens a chunked reader
// on it and hands rows to the caller one at a time. The staging file is
// removed whichever way iteration ends: exhaustion, an error, Rows.Close or
// the end of ForEach.
//
//	p, err := bulkexport.New(cfg, logger)
//	...
//	err = p.ForEach(ctx, ref, func(row chunkreader.Row) error {
//	    return sink.Write(row)
//	})
package bulkexport

import (
	"context"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/ajitpratap0/nebula-bulk/pkg/chunkreader"
	"github.com/ajitpratap0/nebula-bulk/pkg/config"
	"github.com/ajitpratap0/nebula-bulk/pkg/download"
	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
	"github.com/ajitpratap0/nebula-bulk/pkg/logger"
	"github.com/ajitpratap0/nebula-bulk/pkg/staging"
	"github.com/ajitpratap0/nebula-bulk/pkg/textencoding"
)

// Pipeline composes a Downloader and the chunked reader. It holds no
// per-export state and is safe for concurrent use.
type Pipeline struct {
	downloader *download.Downloader
	opts       chunkreader.Options
	encoding   *textencoding.Encoding
	logger     *zap.Logger
}

// New validates cfg and builds a pipeline with the default fetchers.
func New(cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	if log == nil {
		log = logger.Get()
	}
	return NewWithDownloader(download.NewFromConfig(cfg, log), cfg.Reader, log)
}

// NewWithDownloader builds a pipeline around an existing downloader.
func NewWithDownloader(d *download.Downloader, cfg config.ReaderConfig, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		downloader: d,
		opts:       chunkreader.OptionsFromConfig(cfg),
		logger:     log.With(zap.String("component", "bulk_export")),
	}
	if cfg.Encoding != "" {
		enc, err := textencoding.Lookup(cfg.Encoding)
		if err != nil {
			return nil, err
		}
		p.encoding = &enc
	}
	return p, nil
}

// Open fetches ref and returns its rows. The caller must Close the rows
// unless it reads them to the end.
func (p *Pipeline) Open(ctx context.Context, ref download.ResultRef) (*Rows, error) {
	log := logger.FromContext(ctx, p.logger).With(zap.Stringer("result_ref", ref))

	tf, enc, err := p.downloader.Fetch(ctx, ref)
	if err != nil {
		log.Error("failed to fetch result", zap.Error(err))
		return nil, err
	}

	if p.encoding != nil {
		log.Debug("encoding overridden",
			zap.Stringer("detected", enc),
			zap.Stringer("configured", *p.encoding))
		enc = *p.encoding
	}

	opts := p.opts
	opts.Context = ctx
	opts.Logger = log

	it, err := chunkreader.Open(tf, enc, opts)
	if err != nil {
		if rerr := tf.Remove(); rerr != nil {
			log.Warn("failed to remove staging file", zap.Error(rerr))
		}
		return nil, err
	}

	return &Rows{
		it:     it,
		tf:     tf,
		logger: log,
		stats: Stats{
			ResultRef:  ref.String(),
			Bytes:      tf.Size(),
			Encoding:   enc.Name,
			Confidence: enc.Confidence.String(),
		},
	}, nil
}

// ForEach calls fn for every row of ref in order. Iteration stops at the
// first error from fn or from the pipeline, which is returned. The staging
// file is gone when ForEach returns.
func (p *Pipeline) ForEach(ctx context.Context, ref download.ResultRef, fn func(chunkreader.Row) error) error {
	rows, err := p.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer rows.Close()

	for {
		row, err := rows.Next()
		if err == iterator.Done {
			return rows.Close()
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// Stats describes one export.
type Stats struct {
	ResultRef  string `json:"result_ref"`
	Bytes      int64  `json:"bytes"`
	Rows       int64  `json:"rows"`
	Encoding   string `json:"encoding"`
	Confidence string `json:"confidence"`
}

// Rows is the row sequence of one fetched result.
type Rows struct {
	it     *chunkreader.RowIterator
	tf     *staging.TempFile
	logger *zap.Logger
	stats  Stats

	closed   bool
	closeErr error
}

// Next returns the next row, or iterator.Done. The staging file is removed
// as soon as iteration ends.
func (r *Rows) Next() (chunkreader.Row, error) {
	row, err := r.it.Next()
	if err != nil {
		if cerr := r.Close(); cerr != nil && err == iterator.Done {
			return nil, cerr
		}
		return nil, err
	}
	return row, nil
}

// All returns the rows as a sequence; stopping early closes the rows.
func (r *Rows) All() iter.Seq2[chunkreader.Row, error] {
	return func(yield func(chunkreader.Row, error) bool) {
		defer r.Close()
		for {
			row, err := r.Next()
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

// Header returns the column names, nil before the first Next.
func (r *Rows) Header() []string {
	return r.it.Header()
}

// Stats returns the export statistics so far.
func (r *Rows) Stats() Stats {
	s := r.stats
	s.Rows = r.it.RowsRead()
	return s
}

// Path returns the staging file location.
func (r *Rows) Path() string {
	return r.tf.Path()
}

// Close stops iteration and removes the staging file. It is idempotent.
func (r *Rows) Close() error {
	if r.closed {
		return r.closeErr
	}
	r.closed = true

	if err := r.it.Close(); err != nil {
		r.logger.Warn("failed to close reader", zap.Error(err))
	}
	r.closeErr = r.tf.Remove()

	stats := r.Stats()
	r.logger.Info("export finished",
		zap.Int64("rows", stats.Rows),
		zap.Int64("bytes", stats.Bytes),
		zap.String("encoding", stats.Encoding),
		zap.String("confidence", stats.Confidence))

	return r.closeErr
}
