package decode

import(
	"bytes"
	"fmt"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"

	"github.com/abworrall/hdrview/pkg/pixbuf"
)

// decodeRadiance reads a Radiance RGBE (.hdr/.pic) file. The codec does
// the RLE scanline work; we just copy the float channels out.
func decodeRadiance(data []byte) (*Image, error) {
	img, err := rgbe.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	himg, ok := img.(hdr.Image)
	if !ok {
		return nil, fmt.Errorf("radiance decoder returned %T, not an hdr.Image", img)
	}

	return &Image{
		Buffer:         bufferFromHDR(himg),
		HasAlpha:       false,
		SourceChannels: 3,
	}, nil
}

func bufferFromHDR(img hdr.Image) *pixbuf.Buffer {
	b := img.Bounds()
	buf := pixbuf.New(b.Dx(), b.Dy(), 3)
	if b.Empty() {
		return buf
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
			i := buf.PixOffset(x, y)
			buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = float32(r), float32(g), float32(bl)
		}
	}
	return buf
}
