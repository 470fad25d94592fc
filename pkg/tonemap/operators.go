package tonemap

import(
	"fmt"
	"image/color"
	"sort"

	"github.com/mdouchement/hdr/tmo"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/pixbuf"
)

// ExposureGamma is the name of the built-in exposure+gamma transform, for
// callers that pick a tone mapper by name.
const ExposureGamma = "exposure-gamma"

// The global operators from mdouchement/hdr. Each one sees the whole image
// and returns display-referred output, so they are a one-shot alternative
// to exposure+gamma rather than something to run per slider move.
var operators = map[string]func(*pixbuf.Buffer) tmo.ToneMappingOperator{
	"drago03": func(b *pixbuf.Buffer) tmo.ToneMappingOperator {
		op := tmo.NewDefaultDrago03(b)
		op.Bias = 0.85
		return op
	},
	"durand": func(b *pixbuf.Buffer) tmo.ToneMappingOperator {
		return tmo.NewDefaultDurand(b)
	},
	"icam06": func(b *pixbuf.Buffer) tmo.ToneMappingOperator {
		op := tmo.NewDefaultICam06(b)
		op.MaxClipping = 0.999 // keep small specular highlights from blowing out
		return op
	},
	"linear": func(b *pixbuf.Buffer) tmo.ToneMappingOperator {
		return tmo.NewLinear(b)
	},
	"reinhard05": func(b *pixbuf.Buffer) tmo.ToneMappingOperator {
		op := tmo.NewDefaultReinhard05(b)
		op.Chromatic = 0.05
		return op
	},
}

// Operators lists the names ApplyOperator accepts, sorted.
func Operators() []string {
	names := []string{}
	for name := range operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyOperator runs the named global operator over buf. The result has
// the same geometry, color in [0,1], and buf's alpha copied across.
func ApplyOperator(name string, buf *pixbuf.Buffer) (*pixbuf.Buffer, error) {
	mk, exists := operators[name]
	if !exists {
		return nil, hdrerr.NewInvalidParameter("tonemapper", name, fmt.Sprintf("want one of %v", Operators()))
	}
	if err := buf.Validate(); err != nil {
		return nil, hdrerr.NewInvalidParameter("buffer", buf.String(), err.Error())
	}

	img := mk(buf).Perform()
	b := img.Bounds()
	if b.Dx() != buf.Width || b.Dy() != buf.Height {
		return nil, fmt.Errorf("tonemapper '%s' returned %v, expected %dx%d", name, b, buf.Width, buf.Height)
	}

	out := pixbuf.NewLike(buf)
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			i := out.PixOffset(x, y)
			out.Pix[i]   = float32(c.R) / 0xffff
			out.Pix[i+1] = float32(c.G) / 0xffff
			out.Pix[i+2] = float32(c.B) / 0xffff
			if buf.Channels == 4 {
				out.Pix[i+3] = buf.Pix[i+3]
			}
		}
	}
	return out, nil
}
