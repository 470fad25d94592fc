package pixbuf

// Display-side helpers: turning a tone mapped float buffer into 8-bit pixels.

import(
	"image"
	"math"
)

// QuantizeSample maps a float to a byte as clamp(round(v*255), 0, 255).
// Non-finite values become 0.
func QuantizeSample(v float32) uint8 {
	f := math.Round(float64(Finite(v)) * 255.0)
	if f <= 0 {
		return 0
	} else if f >= 255 {
		return 255
	}
	return uint8(f)
}

// Quantize packs the buffer into a contiguous byte raster: row-major,
// interleaved, no padding, same channel count as the buffer (RGB or RGBA).
func Quantize(b *Buffer) []byte {
	out := make([]byte, len(b.Pix))
	for i, v := range b.Pix {
		out[i] = QuantizeSample(v)
	}
	return out
}

// ToImage quantizes the buffer into a Go image. RGBA buffers become
// *image.NRGBA (alpha is straight, not premultiplied); RGB buffers become
// an opaque *image.RGBA.
func ToImage(b *Buffer) image.Image {
	r := b.Bounds()
	if b.Channels == 4 {
		img := image.NewNRGBA(r)
		for i, v := range b.Pix {
			img.Pix[i] = QuantizeSample(v)
		}
		return img
	}

	img := image.NewRGBA(r)
	for i, j := 0, 0; i < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j]   = QuantizeSample(b.Pix[i])
		img.Pix[j+1] = QuantizeSample(b.Pix[i+1])
		img.Pix[j+2] = QuantizeSample(b.Pix[i+2])
		img.Pix[j+3] = 0xFF
	}
	return img
}
