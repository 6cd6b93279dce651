package chunkreader

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
)

// Row maps column names from the header to the values of one record.
type Row map[string]string

// Options configures a RowIterator.
type Options struct {
	// ChunkSize is the number of bytes requested per read (default 1 MiB)
	ChunkSize int
	// Delimiter separates fields (default ',')
	Delimiter byte
	// Quote encloses fields containing delimiters, quotes or line breaks (default '"')
	Quote byte
	// StripNullBytes drops NUL bytes from the decoded stream
	StripNullBytes bool
	// MissingFields is config.MissingFieldsAbsent or config.MissingFieldsEmpty
	MissingFields string

	// Context is observed before every chunk read
	Context context.Context
	Logger  *zap.Logger
}

// DefaultOptions returns the options NewConfig would produce.
func DefaultOptions() Options {
	return OptionsFromConfig(config.NewConfig("").Reader)
}

// OptionsFromConfig maps a reader configuration to Options. The
// configuration is expected to be validated.
func OptionsFromConfig(cfg config.ReaderConfig) Options {
	opts := Options{
		ChunkSize:      cfg.ChunkSize,
		StripNullBytes: cfg.StripNullBytes,
		MissingFields:  cfg.MissingFields,
	}
	if len(cfg.Delimiter) == 1 {
		opts.Delimiter = cfg.DelimiterByte()
	}
	if len(cfg.Quote) == 1 {
		opts.Quote = cfg.QuoteByte()
	}
	return opts
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1 << 20
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	if o.MissingFields == "" {
		o.MissingFields = config.MissingFieldsAbsent
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
