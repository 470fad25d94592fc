// Package tonemap turns linear HDR buffers into display values. The exposure
// and gamma transforms run on every slider move, so they are split across
// CPUs; each one returns a new buffer and leaves its input alone.
//
// Only the color samples are transformed. Alpha is copied through. Any
// non-finite result becomes 0, and negative values are treated as 0 before
// a power is taken.
package tonemap

import(
	"math"
	"runtime"
	"time"

	"github.com/abworrall/hdrview/pkg/pixbuf"
	"github.com/abworrall/hdrview/pkg/timing"
)

// Buffers smaller than this many samples are done on the calling goroutine.
const parallelThreshold = 64 * 1024

// A Processor runs the transforms. The zero value is ready to use.
type Processor struct {
	Workers  int                // 0 means runtime.NumCPU()
	Latency *timing.Histogram   // if set, every call records its duration
}

var defaultProcessor = &Processor{}

func ApplyExposureCorrection(buf *pixbuf.Buffer, stops float64) *pixbuf.Buffer {
	return defaultProcessor.ApplyExposureCorrection(buf, stops)
}

func ApplyGammaCorrection(buf *pixbuf.Buffer, invGamma float64) *pixbuf.Buffer {
	return defaultProcessor.ApplyGammaCorrection(buf, invGamma)
}

func ApplyExposureGammaCorrection(buf *pixbuf.Buffer, stops, invGamma float64) *pixbuf.Buffer {
	return defaultProcessor.ApplyExposureGammaCorrection(buf, stops, invGamma)
}

// Apply runs the fused transform for p.
func (p *Processor)Apply(buf *pixbuf.Buffer, params Params) *pixbuf.Buffer {
	return p.ApplyExposureGammaCorrection(buf, params.Exposure, params.InvGamma)
}

// ApplyExposureCorrection multiplies each color sample by 2^stops.
func (p *Processor)ApplyExposureCorrection(buf *pixbuf.Buffer, stops float64) *pixbuf.Buffer {
	mul := exposureMultiplier(stops)
	return p.run(buf, func(v float32) float32 {
		return expose(v, mul)
	})
}

// ApplyGammaCorrection raises each color sample to invGamma. An invGamma
// that is not a positive finite number is treated as 1.
func (p *Processor)ApplyGammaCorrection(buf *pixbuf.Buffer, invGamma float64) *pixbuf.Buffer {
	g := sanitizeInvGamma(invGamma)
	return p.run(buf, func(v float32) float32 {
		return gamma(v, g)
	})
}

// ApplyExposureGammaCorrection does both in one pass. The result is
// bit-for-bit what the two separate calls would give.
func (p *Processor)ApplyExposureGammaCorrection(buf *pixbuf.Buffer, stops, invGamma float64) *pixbuf.Buffer {
	mul := exposureMultiplier(stops)
	g := sanitizeInvGamma(invGamma)
	return p.run(buf, func(v float32) float32 {
		return gamma(expose(v, mul), g)
	})
}

func exposureMultiplier(stops float64) float32 {
	if math.IsNaN(stops) || math.IsInf(stops, 0) {
		return 1
	}
	return float32(math.Exp2(stops))
}

func sanitizeInvGamma(g float64) float64 {
	if math.IsNaN(g) || math.IsInf(g, 0) || g <= 0 {
		return 1
	}
	return g
}

func expose(v, mul float32) float32 {
	return pixbuf.Finite(v * mul)
}

func gamma(v float32, invGamma float64) float32 {
	if !(v > 0) {
		return 0 // negatives and NaN
	}
	return pixbuf.Finite(float32(math.Pow(float64(v), invGamma)))
}

func (p *Processor)workers() int {
	if p == nil || p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// run applies f to the color samples of buf, in parallel batches of rows.
func (p *Processor)run(buf *pixbuf.Buffer, f func(float32) float32) *pixbuf.Buffer {
	t0 := time.Now()
	out := pixbuf.NewLike(buf)

	rowFunc := func(y0, y1 int) {
		c := buf.Channels
		lo, hi := y0*buf.Stride(), y1*buf.Stride()
		src, dst := buf.Pix[lo:hi], out.Pix[lo:hi]
		for i := 0; i+c <= len(src); i += c {
			dst[i]   = f(src[i])
			dst[i+1] = f(src[i+1])
			dst[i+2] = f(src[i+2])
			if c == 4 {
				dst[i+3] = src[i+3]
			}
		}
	}

	n := p.workers()
	if n == 1 || len(buf.Pix) < parallelThreshold {
		rowFunc(0, buf.Height)
	} else {
		// Split into 4*n batches of rows, at most n running at once
		numBatches := 4 * n
		batchRows := (buf.Height + numBatches - 1) / numBatches
		sem := make(chan bool, n)
		for y := 0; y < buf.Height; y += batchRows {
			y1 := y + batchRows
			if y1 > buf.Height { y1 = buf.Height }

			sem <- true
			go func(y0, y1 int) {
				rowFunc(y0, y1)
				<-sem
			}(y, y1)
		}
		for i := 0; i < cap(sem); i++ { // wait for the stragglers
			sem <- true
		}
	}

	if p != nil && p.Latency != nil {
		p.Latency.Record(time.Since(t0))
	}
	return out
}
