// Package resample resizes float buffers to a display width.
//
// x/image/draw and friends work in 16-bit premultiplied color, which clips
// anything above 1.0, so this is done on the float32 samples directly. The
// work is separable: each row is resized horizontally into a scratch
// buffer, then each column vertically. Shrinking an axis averages the
// source area under each output pixel (a box filter with fractional edge
// weights); growing it interpolates bilinearly between pixel centres,
// clamping at the edges.
package resample

import(
	"math"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/pixbuf"
)

// Dimensions returns the size of an image w x h scaled to targetWidth,
// keeping the aspect ratio. The height never drops below 1.
func Dimensions(w, h, targetWidth int) (int, int) {
	if w <= 0 || targetWidth == w {
		return targetWidth, h
	}
	nh := int(math.Round(float64(h) * float64(targetWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return targetWidth, nh
}

// Resize scales buf to targetWidth, always, including upwards when the
// source is narrower. All channels (alpha too) are filtered alike. The
// input is not modified; when no scaling is needed a copy is returned.
func Resize(buf *pixbuf.Buffer, targetWidth int) (*pixbuf.Buffer, error) {
	if targetWidth <= 0 {
		return nil, hdrerr.NewInvalidParameter("targetWidth", targetWidth, "must be positive")
	}
	if err := buf.Validate(); err != nil {
		return nil, hdrerr.NewInvalidParameter("buffer", buf.String(), err.Error())
	}

	w, h := Dimensions(buf.Width, buf.Height, targetWidth)
	if w == buf.Width && h == buf.Height {
		return buf.Clone(), nil
	}

	c := buf.Channels
	xk := kernel(buf.Width, w)
	yk := kernel(buf.Height, h)

	// Horizontal pass: buf.Width x buf.Height -> w x buf.Height
	tmp := make([]float64, w*buf.Height*c)
	for y := 0; y < buf.Height; y++ {
		src := buf.Pix[y*buf.Width*c : (y+1)*buf.Width*c]
		dst := tmp[y*w*c : (y+1)*w*c]
		for x, taps := range xk {
			for ch := 0; ch < c; ch++ {
				sum := 0.0
				for _, tp := range taps {
					sum += tp.weight * float64(src[tp.index*c+ch])
				}
				dst[x*c+ch] = sum
			}
		}
	}

	// Vertical pass: w x buf.Height -> w x h
	out := pixbuf.New(w, h, c)
	rowLen := w * c
	for y, taps := range yk {
		dst := out.Pix[y*rowLen : (y+1)*rowLen]
		for i := 0; i < rowLen; i++ {
			sum := 0.0
			for _, tp := range taps {
				sum += tp.weight * tmp[tp.index*rowLen+i]
			}
			dst[i] = float32(sum)
		}
	}

	return out, nil
}

type tap struct {
	index   int
	weight  float64
}

// kernel works out, for each of the n output positions along an axis, which
// of the src input positions contribute and by how much. Weights sum to 1.
func kernel(src, n int) [][]tap {
	taps := make([][]tap, n)

	switch {
	case n == src:
		for i := range taps {
			taps[i] = []tap{{i, 1}}
		}

	case n < src:
		// Output pixel i covers [i*scale, (i+1)*scale) of the input
		scale := float64(src) / float64(n)
		for i := range taps {
			lo, hi := float64(i)*scale, float64(i+1)*scale
			for j := int(math.Floor(lo)); j < src && float64(j) < hi; j++ {
				overlap := math.Min(hi, float64(j+1)) - math.Max(lo, float64(j))
				if overlap > 0 {
					taps[i] = append(taps[i], tap{j, overlap / scale})
				}
			}
		}

	default:
		// Map output pixel centres back into input pixel-centre space
		scale := float64(src) / float64(n)
		for i := range taps {
			pos := (float64(i)+0.5)*scale - 0.5
			if pos < 0 {
				pos = 0
			}
			if pos > float64(src-1) {
				pos = float64(src - 1)
			}
			j := int(math.Floor(pos))
			f := pos - float64(j)
			if j+1 >= src || f == 0 {
				taps[i] = []tap{{j, 1}}
			} else {
				taps[i] = []tap{{j, 1 - f}, {j + 1, f}}
			}
		}
	}

	return taps
}
