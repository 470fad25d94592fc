package decode

// LDR (display-referred, [0,1]) formats. We take the values as the file
// stores them; no sRGB-to-linear decoding is applied.

import(
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/gen2brain/jpegn"
	"golang.org/x/image/tiff"

	"github.com/abworrall/hdrview/pkg/pixbuf"
)

func decodeLDR(data []byte, format Format) (*Image, error) {
	var img image.Image
	var err error

	switch format {
	case FormatJPEG: img, err = jpegn.Decode(bytes.NewReader(data), &jpegn.Options{ToRGBA: true, AutoRotate: true})
	case FormatPNG:  img, err = png.Decode(bytes.NewReader(data))
	case FormatTIFF: img, err = tiff.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("'%s' is not an LDR format", format)
	}
	if err != nil {
		return nil, err
	}

	alpha := hasAlpha(img)
	channels := 3
	if alpha {
		channels = 4
	}

	return &Image{
		Buffer:         bufferFromImage(img, channels),
		HasAlpha:       alpha,
		SourceChannels: sourceChannels(img, alpha),
	}, nil
}

// hasAlpha decides whether the decoded image carries a real alpha
// channel. Straight-alpha models always do (the decoders only produce them
// when the file has alpha); premultiplied models only when some pixel
// isn't opaque, since the stdlib decoders also use them for plain RGB.
func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.Alpha, *image.Alpha16:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	}

	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

func sourceChannels(img image.Image, alpha bool) int {
	n := 3
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		n = 1
	}
	if alpha {
		n++
	}
	return n
}

// bufferFromImage converts via NRGBA64 so that translucent pixels keep
// their straight (un-premultiplied) color.
func bufferFromImage(img image.Image, channels int) *pixbuf.Buffer {
	b := img.Bounds()
	buf := pixbuf.New(b.Dx(), b.Dy(), channels)

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			i := buf.PixOffset(x, y)
			buf.Pix[i]   = float32(c.R) / 0xffff
			buf.Pix[i+1] = float32(c.G) / 0xffff
			buf.Pix[i+2] = float32(c.B) / 0xffff
			if channels == 4 {
				buf.Pix[i+3] = float32(c.A) / 0xffff
			}
		}
	}

	return buf
}
