// Package memtrace measures heap growth over a span of work.
//
// A Tracer records the live heap right after a forced collection, then
// samples runtime.MemStats until it is stopped. The report gives the growth
// over that baseline at the end (current) and at its highest (peak),
// together with the process RSS read through gopsutil.
package memtrace

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Report is the outcome of one trace. Sizes are in bytes.
type Report struct {
	Baseline uint64
	Current  uint64
	Peak     uint64
	RSS      uint64
	PeakRSS  uint64
	NumGC    uint32
	Samples  int
	Duration time.Duration
}

// CurrentMB returns Current in MiB.
func (r Report) CurrentMB() float64 { return MB(r.Current) }

// PeakMB returns Peak in MiB.
func (r Report) PeakMB() float64 { return MB(r.Peak) }

func (r Report) String() string {
	return fmt.Sprintf("current=%.2fMB peak=%.2fMB rss=%.2fMB peak_rss=%.2fMB gc=%d samples=%d duration=%s",
		MB(r.Current), MB(r.Peak), MB(r.RSS), MB(r.PeakRSS), r.NumGC, r.Samples, r.Duration.Round(time.Millisecond))
}

// MB converts bytes to MiB.
func MB(b uint64) float64 {
	return float64(b) / (1 << 20)
}

// Tracer samples heap usage. Methods are safe for concurrent use.
type Tracer struct {
	mu       sync.Mutex
	start    time.Time
	baseline uint64
	baseGC   uint32
	current  uint64
	peak     uint64
	numGC    uint32
	samples  int
	peakRSS  uint64

	proc *process.Process
	stop chan struct{}
	wg   sync.WaitGroup
}

// Start collects garbage, records the baseline and, when interval is
// positive, samples in the background at that interval.
func Start(interval time.Duration) *Tracer {
	runtime.GC()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	t := &Tracer{
		start:    time.Now(),
		baseline: ms.HeapAlloc,
		baseGC:   ms.NumGC,
		stop:     make(chan struct{}),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil { //nolint:gosec // pid fits in int32
		t.proc = p
	}

	if interval > 0 {
		t.wg.Add(1)
		go t.loop(interval)
	}
	return t
}

func (t *Tracer) loop(interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Sample()
		}
	}
}

// Sample reads the heap once and updates the peak.
func (t *Tracer) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples++
	t.numGC = ms.NumGC - t.baseGC
	if ms.HeapAlloc > t.baseline {
		t.current = ms.HeapAlloc - t.baseline
	} else {
		t.current = 0
	}
	if t.current > t.peak {
		t.peak = t.current
	}
}

// Stop ends background sampling, takes a final sample and returns the report.
func (t *Tracer) Stop() Report {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.wg.Wait()
	t.Sample()

	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{
		Baseline: t.baseline,
		Current:  t.current,
		Peak:     t.peak,
		NumGC:    t.numGC,
		Samples:  t.samples,
		Duration: time.Since(t.start),
	}
	if t.proc != nil {
		if mi, err := t.proc.MemoryInfo(); err == nil {
			r.RSS = mi.RSS
			// HWM is only reported on Linux
			r.PeakRSS = mi.HWM
		}
	}
	if r.PeakRSS < r.RSS {
		r.PeakRSS = r.RSS
	}
	return r
}
