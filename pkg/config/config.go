// Package config provides the configuration for nebula-bulk.
//
// The configuration is organized into sections:
//   - Download: staging directory and copy/sniff buffer sizes
//   - Reader: chunk size, dialect and row policies
//   - HTTP, S3, GCS: transport settings per result-ref scheme
//   - Logging, Observability: zap, prometheus and tracing switches
//
// Example usage:
//
//	cfg := config.NewConfig("salesforce-account")
//	cfg.Reader.ChunkSize = 4 << 20
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ajitpratap0/nebula-bulk/pkg/logger"
)

// Missing-field policies for rows shorter than the header.
const (
	MissingFieldsAbsent = "absent"
	MissingFieldsEmpty  = "empty"
)

// Config is the top-level configuration of one export pipeline.
type Config struct {
	// Name identifies the pipeline in logs and metrics
	Name string `yaml:"name" json:"name"`

	Download      DownloadConfig      `yaml:"download" json:"download"`
	Reader        ReaderConfig        `yaml:"reader" json:"reader"`
	HTTP          HTTPConfig          `yaml:"http" json:"http"`
	S3            S3Config            `yaml:"s3" json:"s3"`
	GCS           GCSConfig           `yaml:"gcs" json:"gcs"`
	Logging       logger.Config       `yaml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// DownloadConfig controls how payloads are staged on local storage.
type DownloadConfig struct {
	// TempDir is where staging files are created (empty = os.TempDir())
	TempDir string `yaml:"temp_dir" json:"temp_dir"`
	// CopyBufferSize is the size of the buffer used to copy network chunks to disk
	CopyBufferSize int `yaml:"copy_buffer_size" json:"copy_buffer_size"`
	// SniffSize bounds the prefix sampled for encoding detection
	SniffSize int `yaml:"sniff_size" json:"sniff_size"`
}

// ReaderConfig controls chunked parsing of a staged payload.
type ReaderConfig struct {
	// ChunkSize is the fixed number of bytes read per I/O operation
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Delimiter separates fields (single character)
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	// Quote encloses fields containing delimiters or line breaks (single character)
	Quote string `yaml:"quote" json:"quote"`
	// Encoding overrides detection when set (e.g. "utf-8", "iso-8859-1")
	Encoding string `yaml:"encoding" json:"encoding"`
	// StripNullBytes drops NUL bytes from the decoded stream
	StripNullBytes bool `yaml:"strip_null_bytes" json:"strip_null_bytes"`
	// MissingFields is "absent" or "empty"
	MissingFields string `yaml:"missing_fields" json:"missing_fields"`
}

// HTTPConfig configures the HTTP transport used for http(s) result refs.
type HTTPConfig struct {
	// AccessToken is sent as a bearer token when set
	AccessToken string `yaml:"access_token" json:"access_token"`
	// Headers are added to every result request
	Headers               map[string]string `yaml:"headers" json:"headers"`
	UserAgent             string            `yaml:"user_agent" json:"user_agent"`
	EnableHTTP2           bool              `yaml:"enable_http2" json:"enable_http2"`
	MaxIdleConns          int               `yaml:"max_idle_conns" json:"max_idle_conns"`
	DialTimeout           time.Duration     `yaml:"dial_timeout" json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration     `yaml:"tls_handshake_timeout" json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration     `yaml:"response_header_timeout" json:"response_header_timeout"`
	// RequestTimeout bounds the whole transfer including the body (0 = none)
	RequestTimeout     time.Duration `yaml:"request_timeout" json:"request_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// S3Config configures the S3 client used for s3:// result refs.
type S3Config struct {
	Region       string `yaml:"region" json:"region"`
	Profile      string `yaml:"profile" json:"profile"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style" json:"use_path_style"`
}

// GCSConfig configures the storage client used for gs:// result refs.
type GCSConfig struct {
	CredentialsFile       string `yaml:"credentials_file" json:"credentials_file"`
	Endpoint              string `yaml:"endpoint" json:"endpoint"`
	WithoutAuthentication bool   `yaml:"without_authentication" json:"without_authentication"`
}

// ObservabilityConfig contains metrics and tracing settings.
type ObservabilityConfig struct {
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// ServiceName is the tracer's service.name resource attribute
	ServiceName string `yaml:"service_name" json:"service_name"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// NewConfig creates a Config with production defaults.
func NewConfig(name string) *Config {
	return &Config{
		Name: name,
		Download: DownloadConfig{
			CopyBufferSize: 64 << 10,
			SniffSize:      64 << 10,
		},
		Reader: ReaderConfig{
			ChunkSize:      1 << 20,
			Delimiter:      ",",
			Quote:          `"`,
			StripNullBytes: true,
			MissingFields:  MissingFieldsAbsent,
		},
		HTTP: HTTPConfig{
			Headers:               make(map[string]string),
			UserAgent:             "nebula-bulk/1.0",
			EnableHTTP2:           true,
			MaxIdleConns:          100,
			DialTimeout:           30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			ServiceName:       "nebula-bulk",
			TracingSampleRate: 0.1,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Download.CopyBufferSize <= 0 {
		return fmt.Errorf("download.copy_buffer_size must be positive")
	}
	if c.Download.SniffSize <= 0 {
		return fmt.Errorf("download.sniff_size must be positive")
	}
	if c.Reader.ChunkSize <= 0 {
		return fmt.Errorf("reader.chunk_size must be positive")
	}
	if err := singleByte("reader.delimiter", c.Reader.Delimiter); err != nil {
		return err
	}
	if err := singleByte("reader.quote", c.Reader.Quote); err != nil {
		return err
	}
	if c.Reader.Delimiter == c.Reader.Quote {
		return fmt.Errorf("reader.delimiter and reader.quote must differ")
	}
	switch c.Reader.Delimiter {
	case "\r", "\n":
		return fmt.Errorf("reader.delimiter cannot be a line terminator")
	}
	switch c.Reader.MissingFields {
	case MissingFieldsAbsent, MissingFieldsEmpty:
	default:
		return fmt.Errorf("reader.missing_fields must be %q or %q", MissingFieldsAbsent, MissingFieldsEmpty)
	}
	if c.HTTP.RequestTimeout < 0 || c.HTTP.ResponseHeaderTimeout < 0 {
		return fmt.Errorf("http timeouts cannot be negative")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("observability.tracing_sample_rate must be within [0, 1]")
	}
	return nil
}

// DelimiterByte returns the configured delimiter.
func (r *ReaderConfig) DelimiterByte() byte {
	return r.Delimiter[0]
}

// QuoteByte returns the configured quote character.
func (r *ReaderConfig) QuoteByte() byte {
	return r.Quote[0]
}

// HasAccessToken returns true if a bearer token is configured
func (h *HTTPConfig) HasAccessToken() bool {
	return h.AccessToken != ""
}

func singleByte(field, v string) error {
	if len(v) != 1 || !utf8.ValidString(v) || v[0] >= utf8.RuneSelf {
		return fmt.Errorf("%s must be a single ASCII character", field)
	}
	return nil
}
