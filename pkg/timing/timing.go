// Package timing has a scoped stopwatch that logs, and a latency histogram
// for the tone mapping hot path.
package timing

import(
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

// Start returns a func that, when called, returns how long it has been
// since Start, and logs it if verbosity > 0:
//
//	defer timing.Start(cfg.Verbosity, "decode")()
func Start(verbosity int, name string) func() time.Duration {
	t0 := time.Now()
	return func() time.Duration {
		d := time.Since(t0)
		if verbosity > 0 {
			log.Printf("[timer] %s: %s\n", name, d)
		}
		return d
	}
}

// A Histogram records durations at microsecond resolution. It is safe for
// concurrent use.
type Histogram struct {
	mu  sync.Mutex
	h  *hdrhistogram.Histogram
}

// NewHistogram tracks durations from 1us up to max, with 3 significant figures.
func NewHistogram(max time.Duration) *Histogram {
	hi := max.Microseconds()
	if hi < 2 {
		hi = 2
	}
	return &Histogram{h: hdrhistogram.New(1, hi, 3)}
}

// Record adds one observation. Values outside the trackable range are
// clamped into it.
func (h *Histogram)Record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if max := h.h.HighestTrackableValue(); us > max {
		us = max
	}
	h.h.RecordValue(us)
}

// Quantile returns the duration at q, which is in [0,100] (e.g. 99.9).
func (h *Histogram)Quantile(q float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.h.ValueAtQuantile(q)) * time.Microsecond
}

func (h *Histogram)Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.h.TotalCount()
}

func (h *Histogram)Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.h.Reset()
}

func (h *Histogram)String() string {
	if h.Count() == 0 {
		return "no samples"
	}
	return fmt.Sprintf("n=%d p50=%s p90=%s p99=%s max=%s", h.Count(),
		h.Quantile(50), h.Quantile(90), h.Quantile(99), h.Quantile(100))
}
