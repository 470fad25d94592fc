// Package fixtures builds small image files for tests: scanline OpenEXR
// (uncompressed, RLE or ZIP), PNG and Radiance files, written into a temp dir.
package fixtures

import(
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/x448/float16"

	"github.com/abworrall/hdrview/pkg/pixbuf"
)

type PixelType int32

const(
	Uint  PixelType = 0
	Half  PixelType = 1
	Float PixelType = 2
)

type Compression uint8

const(
	None Compression = 0
	RLE  Compression = 1
	ZIPS Compression = 2
	ZIP  Compression = 3
)

func (c Compression)lines() int {
	if c == ZIP {
		return 16
	}
	return 1
}

// SampleFunc returns the value of channel `name` at (x,y).
type SampleFunc func(x, y int, name string) float32

// EXR is a recipe for a scanline OpenEXR file.
type EXR struct {
	Width, Height  int
	XMin, YMin     int          // Origin of the data window
	Channels     []string     // Written in this order; real files sort them (A,B,G,R)
	PixelType
	Compression
	Sample         SampleFunc
}

func (e EXR)Encode() []byte {
	var hdr bytes.Buffer
	le := binary.LittleEndian

	binary.Write(&hdr, le, uint32(20000630))
	binary.Write(&hdr, le, uint32(2))

	attr := func(name, typ string, payload []byte) {
		hdr.WriteString(name + "\x00" + typ + "\x00")
		binary.Write(&hdr, le, int32(len(payload)))
		hdr.Write(payload)
	}

	var chlist bytes.Buffer
	for _, name := range e.Channels {
		chlist.WriteString(name + "\x00")
		binary.Write(&chlist, le, int32(e.PixelType))
		chlist.Write([]byte{0, 0, 0, 0})
		binary.Write(&chlist, le, int32(1))
		binary.Write(&chlist, le, int32(1))
	}
	chlist.WriteByte(0)
	attr("channels", "chlist", chlist.Bytes())
	attr("compression", "compression", []byte{byte(e.Compression)})

	box := func(x, y int) []byte {
		b := make([]byte, 16)
		le.PutUint32(b[0:], uint32(int32(x)))
		le.PutUint32(b[4:], uint32(int32(y)))
		le.PutUint32(b[8:], uint32(int32(x+e.Width-1)))
		le.PutUint32(b[12:], uint32(int32(y+e.Height-1)))
		return b
	}
	attr("dataWindow", "box2i", box(e.XMin, e.YMin))
	attr("displayWindow", "box2i", box(0, 0))
	attr("lineOrder", "lineOrder", []byte{0})
	attr("pixelAspectRatio", "float", le.AppendUint32(nil, math.Float32bits(1)))
	hdr.WriteByte(0)

	nLines := e.Compression.lines()
	nBlocks := (e.Height + nLines - 1) / nLines

	blocks := [][]byte{}
	for b := 0; b < nBlocks; b++ {
		var raw bytes.Buffer
		for y := b * nLines; y < (b+1)*nLines && y < e.Height; y++ {
			for _, name := range e.Channels {
				for x := 0; x < e.Width; x++ {
					v := e.Sample(x, y, name)
					switch e.PixelType {
					case Half:  binary.Write(&raw, le, float16.Fromfloat32(v).Bits())
					case Float: binary.Write(&raw, le, math.Float32bits(v))
					case Uint:  binary.Write(&raw, le, uint32(v))
					}
				}
			}
		}
		blocks = append(blocks, compress(e.Compression, raw.Bytes()))
	}

	offset := uint64(hdr.Len() + 8*nBlocks)
	out := bytes.NewBuffer(hdr.Bytes())
	for _, blk := range blocks {
		binary.Write(out, le, offset)
		offset += uint64(8 + len(blk))
	}
	for b, blk := range blocks {
		binary.Write(out, le, int32(e.YMin + b*nLines))
		binary.Write(out, le, int32(len(blk)))
		out.Write(blk)
	}

	return out.Bytes()
}

func compress(c Compression, raw []byte) []byte {
	if c == None {
		return raw
	}

	// Interleave even and odd bytes into two halves, then delta encode
	half := (len(raw) + 1) / 2
	shuffled := make([]byte, len(raw))
	for i := range raw {
		if i%2 == 0 {
			shuffled[i/2] = raw[i]
		} else {
			shuffled[half + i/2] = raw[i]
		}
	}
	pred := make([]byte, len(shuffled))
	for i := range shuffled {
		if i == 0 {
			pred[i] = shuffled[i]
		} else {
			pred[i] = byte(int(shuffled[i]) - int(shuffled[i-1]) + 128)
		}
	}

	var packed []byte
	if c == RLE {
		packed = rle(pred)
	} else {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		zw.Write(pred)
		zw.Close()
		packed = zbuf.Bytes()
	}

	// Same rule as the real library: if it didn't shrink, store it raw
	if len(packed) >= len(raw) {
		return raw
	}
	return packed
}

func rle(in []byte) []byte {
	out := []byte{}
	for i := 0; i < len(in); {
		run := 1
		for i+run < len(in) && in[i+run] == in[i] && run < 128 {
			run++
		}
		if run >= 3 {
			out = append(out, byte(run-1), in[i])
			i += run
			continue
		}

		start := i
		for i < len(in) && i-start < 127 {
			if i+2 < len(in) && in[i] == in[i+1] && in[i] == in[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(int8(-(i - start))))
		out = append(out, in[start:i]...)
	}
	return out
}

// WriteFile puts data into a new file under t.TempDir().
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func WriteEXR(t testing.TB, name string, e EXR) string {
	t.Helper()
	return WriteFile(t, name, e.Encode())
}

func WritePNG(t testing.TB, name string, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png %s: %v", name, err)
	}
	return WriteFile(t, name, buf.Bytes())
}

// WriteRadiance writes the RGB channels of buf as an RGBE file.
func WriteRadiance(t testing.TB, name string, buf *pixbuf.Buffer) string {
	t.Helper()
	var out bytes.Buffer
	if err := rgbe.Encode(&out, buf); err != nil {
		t.Fatalf("encode rgbe %s: %v", name, err)
	}
	return WriteFile(t, name, out.Bytes())
}

// Gradient fills R,G,B with the same value, lo at x=0 up to hi at the
// right edge; alpha is 1.0 at the top row, falling to 0.5 at the bottom.
func Gradient(width, height int, lo, hi float32) SampleFunc {
	return func(x, y int, name string) float32 {
		if name == "A" {
			return 1.0 - 0.5*float32(y)/float32(height-1)
		}
		return lo + (hi-lo)*float32(x)/float32(width-1)
	}
}

func Constant(v float32) SampleFunc {
	return func(x, y int, name string) float32 { return v }
}
