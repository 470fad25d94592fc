package pixbuf

import(
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/mdouchement/hdr/hdrcolor"
)

// A Buffer holds linear-light float pixels, row-major with the channels
// interleaved (RGB or RGBA). Values are unclamped, and for HDR sources
// routinely exceed 1.0.
//
// Once a Buffer has been handed to another stage it is treated as
// read-only; every transform in this module returns a new Buffer.
//
// Buffer implements image.Image and mdouchement/hdr's hdr.Image, so the
// HDR codecs and tone mapping operators in that package can read it.
type Buffer struct {
	Width    int
	Height   int
	Channels int       // 3 (RGB) or 4 (RGBA)
	Pix    []float32
}

func New(w, h, channels int) *Buffer {
	return &Buffer{
		Width:    w,
		Height:   h,
		Channels: channels,
		Pix:      make([]float32, w*h*channels),
	}
}

// NewLike returns a zeroed buffer with the same geometry as b.
func NewLike(b *Buffer) *Buffer { return New(b.Width, b.Height, b.Channels) }

func (b *Buffer)Validate() error {
	if b == nil {
		return fmt.Errorf("nil pixel buffer")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("bad geometry %dx%d", b.Width, b.Height)
	}
	if b.Channels != 3 && b.Channels != 4 {
		return fmt.Errorf("bad channel count %d", b.Channels)
	}
	if len(b.Pix) != b.Width*b.Height*b.Channels {
		return fmt.Errorf("buffer %dx%dx%d has %d samples", b.Width, b.Height, b.Channels, len(b.Pix))
	}
	return nil
}

func (b *Buffer)HasAlpha() bool         { return b.Channels == 4 }
func (b *Buffer)Stride() int            { return b.Width * b.Channels }
func (b *Buffer)PixOffset(x, y int) int { return y*b.Stride() + x*b.Channels }

func (b *Buffer)Clone() *Buffer {
	c := NewLike(b)
	copy(c.Pix, b.Pix)
	return c
}

func (b *Buffer)String() string {
	return fmt.Sprintf("pixbuf[%dx%dx%d]", b.Width, b.Height, b.Channels)
}

// Implement image.Image
func (b *Buffer)ColorModel() color.Model { return hdrcolor.RGBModel }
func (b *Buffer)Bounds() image.Rectangle { return image.Rect(0, 0, b.Width, b.Height) }
func (b *Buffer)At(x, y int) color.Color { return b.HDRAt(x, y) }

// Implement hdr.Image. Alpha is not part of hdrcolor.RGB, so it is dropped here.
func (b *Buffer)HDRAt(x, y int) hdrcolor.Color {
	if !(image.Point{x, y}.In(b.Bounds())) {
		return hdrcolor.RGB{}
	}
	i := b.PixOffset(x, y)
	return hdrcolor.RGB{R: float64(b.Pix[i]), G: float64(b.Pix[i+1]), B: float64(b.Pix[i+2])}
}
func (b *Buffer)Size() int { return b.Width * b.Height }

// Finite maps NaN and +/-Inf to zero, and leaves everything else alone.
func Finite(v float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}

// Sanitize replaces every non-finite sample in place. Only for use by the
// stage that owns the buffer (i.e. the decoder, before handing it on).
func (b *Buffer)Sanitize() int {
	n := 0
	for i, v := range b.Pix {
		if f := Finite(v); f != v {
			b.Pix[i] = f
			n++
		}
	}
	return n
}

// AlphaIsOpaque reports whether every alpha sample is >= 1.0. Buffers
// without alpha are trivially opaque.
func (b *Buffer)AlphaIsOpaque() bool {
	if b.Channels != 4 {
		return true
	}
	for i := 3; i < len(b.Pix); i += 4 {
		if b.Pix[i] < 1.0 {
			return false
		}
	}
	return true
}

// DropAlpha returns an RGB copy of an RGBA buffer. An RGB buffer is returned as is.
func (b *Buffer)DropAlpha() *Buffer {
	if b.Channels != 4 {
		return b
	}
	out := New(b.Width, b.Height, 3)
	for i, j := 0, 0; i < len(b.Pix); i, j = i+4, j+3 {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = b.Pix[i], b.Pix[i+1], b.Pix[i+2]
	}
	return out
}
