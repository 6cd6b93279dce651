// Package metrics provides Prometheus instrumentation for nebula-bulk.
//
// # Overview
//
// The collectors cover both halves of an export:
//   - downloads: count by scheme and outcome, bytes staged, duration
//   - reading: rows yielded, chunks read, errors by type, largest carry
//   - staging: number of staging files currently on disk
//
// # Basic Usage
//
//	timer := metrics.NewTimer("https")
//	n, err := stage(body)
//	metrics.ObserveDownload("https", status(err), n, timer.Stop())
//
// All collectors are registered with the default registry through promauto.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DownloadsTotal counts finished downloads.
	// Labels: scheme (https, s3, gs), status (success or the error type)
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_bulk_downloads_total",
			Help: "Total number of result downloads by outcome",
		},
		[]string{"scheme", "status"},
	)

	// DownloadedBytes counts payload bytes written to staging files.
	DownloadedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_bulk_downloaded_bytes_total",
			Help: "Total payload bytes staged to local storage",
		},
		[]string{"scheme"},
	)

	// DownloadDuration tracks how long a result takes to stage, in seconds.
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nebula_bulk_download_duration_seconds",
			Help: "Time to stage one result payload",
			Buckets: []float64{
				0.01, // 10ms - tiny results
				0.1,  // 100ms
				0.5,
				1,
				5,
				30,
				120,
				600, // 10m - multi-GB exports
			},
		},
		[]string{"scheme"},
	)

	// RowsRead counts rows yielded to consumers.
	RowsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nebula_bulk_rows_read_total",
			Help: "Total number of rows yielded by chunked readers",
		},
	)

	// ChunksRead counts fixed-size chunk reads.
	ChunksRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nebula_bulk_chunks_read_total",
			Help: "Total number of chunk reads from staging files",
		},
	)

	// ReadErrors counts terminal reader errors by type (read, parse).
	ReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_bulk_read_errors_total",
			Help: "Total number of terminal reader errors",
		},
		[]string{"type"},
	)

	// MaxCarryBytes records the largest row carried across a chunk boundary.
	MaxCarryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nebula_bulk_max_carry_bytes",
			Help: "Largest partial line carried across a chunk boundary",
		},
	)

	// StagedFiles tracks staging files currently present on disk.
	StagedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nebula_bulk_staged_files",
			Help: "Number of staging files currently on local storage",
		},
	)
)

var carryMu sync.Mutex
var maxCarry int

// ObserveDownload records the outcome of one download. status is "success"
// or the error type of the failure.
func ObserveDownload(scheme, status string, bytes int64, d time.Duration) {
	DownloadsTotal.WithLabelValues(scheme, status).Inc()
	if bytes > 0 {
		DownloadedBytes.WithLabelValues(scheme).Add(float64(bytes))
	}
	DownloadDuration.WithLabelValues(scheme).Observe(d.Seconds())
}

// ObserveCarry raises MaxCarryBytes when n exceeds the largest carry seen.
func ObserveCarry(n int) {
	carryMu.Lock()
	defer carryMu.Unlock()
	if n > maxCarry {
		maxCarry = n
		MaxCarryBytes.Set(float64(n))
	}
}

// Handler exposes the default registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
