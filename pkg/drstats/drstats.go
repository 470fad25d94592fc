// Package drstats measures the dynamic range of a linear float image: the
// ratio of the brightest to the dimmest non-black luminance, and the same
// thing as photographic stops.
package drstats

import(
	"fmt"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/hdrview/pkg/emath"
	"github.com/abworrall/hdrview/pkg/pixbuf"
)

// Epsilon is the floor for the dimmest luminance, so a handful of nearly
// black pixels can't make the range explode.
const Epsilon = 1e-6

type Stats struct {
	DynamicRange  float64  // max/min luminance, always >= 1
	Stops         float64  // log2(DynamicRange)
	MinLuminance  float64  // smallest non-zero luminance; 0 if the image is black
	MaxLuminance  float64
}

// Luminance is the CIE Y of a linear Rec.709 RGB triple. Negative inputs
// are treated as 0.
func Luminance(r, g, b float32) float64 {
	_, y, _ := colorful.LinearRgbToXyz(math.Max(0, float64(r)), math.Max(0, float64(g)), math.Max(0, float64(b)))
	return y
}

// Analyze makes a single read-only pass over buf. Alpha is ignored.
func Analyze(buf *pixbuf.Buffer) Stats {
	minNonZero := math.Inf(1)
	max := 0.0

	c := buf.Channels
	for i := 0; i+2 < len(buf.Pix); i += c {
		y := Luminance(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		if y > max {
			max = y
		}
		if y > 0 && y < minNonZero {
			minNonZero = y
		}
	}

	if max <= 0 {
		return Stats{DynamicRange: 1, Stops: 0}
	}

	dr := max / math.Max(Epsilon, minNonZero)
	if dr < 1 {
		dr = 1
	}

	return Stats{
		DynamicRange: dr,
		Stops:        math.Log2(dr),
		MinLuminance: minNonZero,
		MaxLuminance: max,
	}
}

func (s Stats)String() string {
	return fmt.Sprintf("%s:1 (%s stops, %s)", FormatDynamicRange(s.DynamicRange), FormatStops(s.Stops), s.Quality())
}

// Quality buckets the range the way the viewer's info line describes it.
func (s Stats)Quality() string {
	switch {
	case s.DynamicRange > 100000 && s.Stops > 15: return "Very High"
	case s.DynamicRange > 10000  && s.Stops > 10: return "High"
	}
	return "Standard"
}

// FormatDynamicRange gives 950.00, 1.23K, 4.56M.
func FormatDynamicRange(dr float64) string {
	switch {
	case dr >= 1e6: return fmt.Sprintf("%.2fM", dr/1e6)
	case dr >= 1e3: return fmt.Sprintf("%.2fK", dr/1e3)
	}
	return fmt.Sprintf("%.2f", dr)
}

func FormatStops(stops float64) string {
	return fmt.Sprintf("%.1f", stops)
}

// Normalize scales the color samples so that the value found at the given
// percentile (0 < p < 1, e.g. 0.99 for the top 1%) becomes 1.0. Alpha is
// copied as is. It returns the new buffer and the scale applied; if the
// percentile value is zero (or p is out of range) the buffer is just
// cloned and the scale is 1.
func Normalize(buf *pixbuf.Buffer, p float64) (*pixbuf.Buffer, float64) {
	out := buf.Clone()
	if !(p > 0 && p < 1) {
		return out, 1
	}

	c := buf.Channels
	vals := make([]float64, 0, buf.Width*buf.Height*3)
	for i := 0; i < len(buf.Pix); i += c {
		vals = append(vals, float64(buf.Pix[i]), float64(buf.Pix[i+1]), float64(buf.Pix[i+2]))
	}
	if len(vals) == 0 {
		return out, 1
	}
	sort.Float64s(vals)

	ref := stat.Quantile(p, stat.Empirical, vals, nil)
	if !(ref > 0) || math.IsInf(ref, 0) {
		return out, 1
	}

	scale := 1 / ref
	for i := 0; i < len(out.Pix); i += c {
		for k := 0; k < 3; k++ {
			out.Pix[i+k] = pixbuf.Finite(float32(float64(out.Pix[i+k]) * scale))
		}
	}
	return out, scale
}

// LuminanceGrid returns log2 luminance per pixel. Black pixels get the
// log of Epsilon, so the grid stays finite.
func LuminanceGrid(buf *pixbuf.Buffer) emath.FloatGrid {
	g := emath.NewFloatGrid(buf.Width, buf.Height)
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			i := buf.PixOffset(x, y)
			g.Set(x, y, math.Log2(math.Max(Epsilon, Luminance(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2]))))
		}
	}
	return g
}
