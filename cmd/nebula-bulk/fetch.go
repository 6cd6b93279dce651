package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-bulk/internal/memtrace"
	"github.com/ajitpratap0/nebula-bulk/pkg/bulkexport"
	"github.com/ajitpratap0/nebula-bulk/pkg/config"
	"github.com/ajitpratap0/nebula-bulk/pkg/download"
	"github.com/ajitpratap0/nebula-bulk/pkg/json"
	"github.com/ajitpratap0/nebula-bulk/pkg/logger"
	"github.com/ajitpratap0/nebula-bulk/pkg/metrics"
	"github.com/ajitpratap0/nebula-bulk/pkg/observability"
)

const envPrefix = "NEBULA_BULK"

// fetchOptions are the settings of one fetch run that are not part of config.Config
type fetchOptions struct {
	JobID       string
	Timeout     time.Duration
	Limit       int64
	TraceMemory bool
	Stats       bool
	MetricsAddr string
}

func newFetchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "fetch <result-ref>",
		Short: "Download a bulk export result and print its rows as JSON lines",
		Long: `Download the result at <result-ref> (https://, s3://bucket/key or gs://bucket/object),
stage it on local disk and print one JSON object per row.

Every flag can also be set through a NEBULA_BULK_ environment variable,
e.g. NEBULA_BULK_ACCESS_TOKEN or NEBULA_BULK_CHUNK_SIZE.

Example:
  nebula-bulk fetch https://example.my.salesforce.com/services/data/v58.0/jobs/query/750xx/results --trace-memory`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			headers, err := cmd.Flags().GetStringToString("header")
			if err != nil {
				return err
			}
			for k, val := range headers {
				cfg.HTTP.Headers[k] = val
			}
			return runFetch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, fetchOptions{
				JobID:       v.GetString("job-id"),
				Timeout:     v.GetDuration("timeout"),
				Limit:       v.GetInt64("limit"),
				TraceMemory: v.GetBool("trace-memory"),
				Stats:       v.GetBool("stats"),
				MetricsAddr: v.GetString("metrics-addr"),
			}, download.ResultRef(args[0]))
		},
	}

	f := cmd.Flags()
	f.String("config", "", "Path to a YAML configuration file")
	f.String("temp-dir", "", "Directory for staging files (default: system temp dir)")
	f.Int("chunk-size", 0, "Bytes read per chunk (default 1MiB)")
	f.String("delimiter", "", "Field delimiter (default \",\")")
	f.String("quote", "", "Quote character (default '\"')")
	f.String("encoding", "", "Force the text encoding instead of detecting it (e.g. utf-8, iso-8859-1)")
	f.String("missing-fields", "", "How to fill columns missing from short rows: absent or empty")
	f.String("access-token", "", "Bearer token sent with http(s) requests")
	f.StringToString("header", nil, "Extra request header as key=value (repeatable)")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.Bool("trace", false, "Export tracing spans to stderr")
	f.String("job-id", "", "Export job ID attached to log entries")
	f.Duration("timeout", 0, "Overall timeout for the fetch (0 = none)")
	f.Int64("limit", 0, "Stop after this many rows (0 = all)")
	f.Bool("trace-memory", false, "Print heap and RSS usage to stderr when done")
	f.Bool("stats", false, "Print export statistics as JSON to stderr when done")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while fetching")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// loadConfig layers the optional config file, then flags and environment
// variables, over the defaults.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewConfig("nebula-bulk")
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path, cfg.Name)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = make(map[string]string)
		}
	}

	if v.IsSet("temp-dir") {
		cfg.Download.TempDir = v.GetString("temp-dir")
	}
	if v.IsSet("chunk-size") {
		cfg.Reader.ChunkSize = v.GetInt("chunk-size")
	}
	if v.IsSet("delimiter") {
		cfg.Reader.Delimiter = unescapeDelimiter(v.GetString("delimiter"))
	}
	if v.IsSet("quote") {
		cfg.Reader.Quote = v.GetString("quote")
	}
	if v.IsSet("encoding") {
		cfg.Reader.Encoding = v.GetString("encoding")
	}
	if v.IsSet("missing-fields") {
		cfg.Reader.MissingFields = v.GetString("missing-fields")
	}
	if v.IsSet("access-token") {
		cfg.HTTP.AccessToken = v.GetString("access-token")
	}
	if v.IsSet("log-level") {
		cfg.Logging.Level = v.GetString("log-level")
	}
	if v.GetBool("trace") {
		cfg.Observability.EnableTracing = true
		cfg.Observability.TracingSampleRate = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// unescapeDelimiter accepts the names Salesforce uses for column delimiters.
func unescapeDelimiter(s string) string {
	switch strings.ToUpper(s) {
	case `\T`, "TAB":
		return "\t"
	case "COMMA":
		return ","
	case "PIPE":
		return "|"
	case "SEMICOLON":
		return ";"
	case "CARET":
		return "^"
	case "BACKQUOTE":
		return "`"
	}
	return s
}

func runFetch(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, opts fetchOptions, ref download.ResultRef) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if opts.JobID != "" {
		ctx = context.WithValue(ctx, logger.JobIDKey, opts.JobID)
	}
	log := logger.FromContext(ctx, logger.With(zap.String("component", "nebula-bulk-cli")))

	shutdown, err := observability.Init(cfg.Observability, version, stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	p, err := bulkexport.New(cfg, logger.Get())
	if err != nil {
		return err
	}

	var tracer *memtrace.Tracer
	if opts.TraceMemory {
		tracer = memtrace.Start(10 * time.Millisecond)
		// Stop is idempotent; this covers the error returns below.
		defer tracer.Stop()
	}

	rows, err := p.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer rows.Close()

	out := json.NewLineWriter(stdout)
	for row, err := range rows.All() {
		if err != nil {
			_ = out.Flush()
			return err
		}
		if err := out.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		if opts.Limit > 0 && out.Count() >= opts.Limit {
			break
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	stats := rows.Stats()
	log.Info("fetch completed",
		zap.Int64("rows", stats.Rows),
		zap.Int64("bytes", stats.Bytes),
		zap.String("encoding", stats.Encoding))

	if opts.Stats {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "%s\n", data)
	}
	if tracer != nil {
		fmt.Fprintf(stderr, "memory: %s\n", tracer.Stop())
	}
	return nil
}
