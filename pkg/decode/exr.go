package decode

// A scanline OpenEXR decoder. Handles single-part, flat (non-deep),
// scanline images using NONE, RLE, ZIPS or ZIP compression, with HALF,
// FLOAT or UINT channels. That covers what cameras, renderers and most
// HDR panoramas ship as; PIZ/PXR24/B44/DWA and tiled files are rejected
// with an error rather than decoded badly.

import(
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/x448/float16"

	"github.com/abworrall/hdrview/pkg/pixbuf"
)

const exrMagic = 20000630

// Bits in the version field (after the version byte itself)
const(
	exrFlagTiled     = 0x00000200
	exrFlagNonImage  = 0x00000800
	exrFlagMultipart = 0x00001000
)

type exrPixelType int32

const(
	exrUint  exrPixelType = 0
	exrHalf  exrPixelType = 1
	exrFloat exrPixelType = 2
)

func (t exrPixelType)size() int {
	switch t {
	case exrHalf:            return 2
	case exrUint, exrFloat:  return 4
	}
	return 0
}

func (t exrPixelType)String() string {
	switch t {
	case exrUint:  return "uint"
	case exrHalf:  return "half"
	case exrFloat: return "float"
	}
	return fmt.Sprint(int32(t))
}

type exrCompression uint8

const(
	exrCompressionNone  exrCompression = 0
	exrCompressionRLE   exrCompression = 1
	exrCompressionZIPS  exrCompression = 2
	exrCompressionZIP   exrCompression = 3
	exrCompressionPIZ   exrCompression = 4
	exrCompressionPXR24 exrCompression = 5
	exrCompressionB44   exrCompression = 6
	exrCompressionB44A  exrCompression = 7
	exrCompressionDWAA  exrCompression = 8
	exrCompressionDWAB  exrCompression = 9
)

var exrCompressionNames = []string{"none", "rle", "zips", "zip", "piz", "pxr24", "b44", "b44a", "dwaa", "dwab"}

func (c exrCompression)String() string {
	if int(c) < len(exrCompressionNames) {
		return exrCompressionNames[c]
	}
	return fmt.Sprint(uint8(c))
}

// linesPerBlock is how many scanlines share one chunk; 0 means we can't decode it.
func (c exrCompression)linesPerBlock() int {
	switch c {
	case exrCompressionNone, exrCompressionRLE, exrCompressionZIPS: return 1
	case exrCompressionZIP:                                         return 16
	}
	return 0
}

// maxExpansion bounds how many bytes one stored byte can unpack to: a
// 2 byte RLE run makes 128, deflate tops out near 1032:1.
func (c exrCompression)maxExpansion() int64 {
	switch c {
	case exrCompressionRLE:                          return 64
	case exrCompressionZIPS, exrCompressionZIP:      return 1032
	}
	return 1
}

// Where a channel's samples end up in the output pixel
type exrRole int

const(
	exrRoleSkip exrRole = iota
	exrRoleR
	exrRoleG
	exrRoleB
	exrRoleA
	exrRoleY
)

type exrChannel struct {
	name       string
	pixelType  exrPixelType
	xSampling  int32
	ySampling  int32
	role       exrRole
}

type exrHeader struct {
	channels     []exrChannel
	compression    exrCompression
	dataWindow     [4]int32 // xMin, yMin, xMax, yMax
}

func (h exrHeader)width() int  { return int(h.dataWindow[2]) - int(h.dataWindow[0]) + 1 }
func (h exrHeader)height() int { return int(h.dataWindow[3]) - int(h.dataWindow[1]) + 1 }

func (h exrHeader)has(role exrRole) bool {
	for _, ch := range h.channels {
		if ch.role == role {
			return true
		}
	}
	return false
}

// bytesPerLine is the size of one uncompressed scanline, all channels.
func (h exrHeader)bytesPerLine() int {
	n := 0
	for _, ch := range h.channels {
		n += ch.pixelType.size() * h.width()
	}
	return n
}

type exrBlock struct {
	startY  int
	lines   int
	data    []byte
}

func decodeEXR(data []byte) (*Image, error) {
	r := bytes.NewReader(data)

	hdr, err := readEXRHeader(r)
	if err != nil {
		return nil, err
	}

	width, height := hdr.width(), hdr.height()
	blockLines := hdr.compression.linesPerBlock()
	nBlocks := (height + blockLines - 1) / blockLines

	// Each block costs an 8 byte offset plus an 8 byte chunk header, so a
	// file too short for that is lying about its size.
	if int64(nBlocks)*16 > int64(r.Len()) {
		return nil, fmt.Errorf("exr: %dx%d needs %d blocks, only %d bytes left", width, height, nBlocks, r.Len())
	}
	offsets := make([]uint64, nBlocks)
	if err := binary.Read(r, binary.LittleEndian, offsets); err != nil {
		return nil, fmt.Errorf("exr offset table: %w", err)
	}

	// Check every chunk header before allocating any pixels
	blocks := make([]exrBlock, nBlocks)
	seen := make([]bool, nBlocks)
	for i, off := range offsets {
		if off == 0 || off >= uint64(len(data)) {
			return nil, fmt.Errorf("exr block %d: bad offset %d (file is %d bytes)", i, off, len(data))
		}
		if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
			return nil, err
		}

		var chunk struct {
			Y    int32
			Size int32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return nil, fmt.Errorf("exr block %d header: %w", i, err)
		}
		if chunk.Size < 0 || int64(chunk.Size) > int64(r.Len()) {
			return nil, fmt.Errorf("exr block %d: size %d overruns file", i, chunk.Size)
		}

		startY := int(chunk.Y) - int(hdr.dataWindow[1])
		if startY < 0 || startY >= height || startY%blockLines != 0 {
			return nil, fmt.Errorf("exr block %d: scanline %d out of range", i, chunk.Y)
		}
		if seen[startY/blockLines] {
			return nil, fmt.Errorf("exr block %d: duplicate scanline %d", i, chunk.Y)
		}
		seen[startY/blockLines] = true

		lines := blockLines
		if startY+lines > height {
			lines = height - startY
		}
		if want := int64(lines) * int64(hdr.bytesPerLine()); want > int64(chunk.Size)*hdr.compression.maxExpansion() {
			return nil, fmt.Errorf("exr block %d: %d bytes can't hold %d lines of %d bytes", i, chunk.Size, lines, hdr.bytesPerLine())
		}

		pos := int(off) + 8
		blocks[i] = exrBlock{startY: startY, lines: lines, data: data[pos : pos+int(chunk.Size)]}
	}

	outChannels := 3
	if hdr.has(exrRoleA) {
		outChannels = 4
	}
	buf := pixbuf.New(width, height, outChannels)

	// Not every file sets all three color channels; Y-only gets copied into R,G,B.
	gray := hdr.has(exrRoleY) && !hdr.has(exrRoleR) && !hdr.has(exrRoleG) && !hdr.has(exrRoleB)

	for i, blk := range blocks {
		unpacked, err := exrDecompress(hdr.compression, blk.data, blk.lines*hdr.bytesPerLine())
		if err != nil {
			return nil, fmt.Errorf("exr block %d (%s): %w", i, hdr.compression, err)
		}
		exrDecodeBlock(buf, hdr, blk.startY, blk.lines, unpacked, gray)
	}

	return &Image{
		Buffer:         buf,
		HasAlpha:       outChannels == 4,
		SourceChannels: len(hdr.channels),
	}, nil
}

func readEXRHeader(r *bytes.Reader) (exrHeader, error) {
	hdr := exrHeader{}

	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return hdr, fmt.Errorf("exr magic: %w", err)
	}
	if magic != exrMagic {
		return hdr, errors.New("not an OpenEXR file")
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return hdr, fmt.Errorf("exr version: %w", err)
	}
	switch {
	case version&0xff != 2:               return hdr, fmt.Errorf("unsupported OpenEXR version %d", version&0xff)
	case version&exrFlagTiled != 0:       return hdr, errors.New("tiled OpenEXR not supported")
	case version&exrFlagNonImage != 0:    return hdr, errors.New("deep OpenEXR not supported")
	case version&exrFlagMultipart != 0:   return hdr, errors.New("multipart OpenEXR not supported")
	}

	required := map[string]bool{"channels": false, "compression": false, "dataWindow": false}

	for {
		name, err := readNullString(r)
		if err != nil {
			return hdr, fmt.Errorf("exr attribute name: %w", err)
		}
		if name == "" {
			break
		}
		typ, err := readNullString(r)
		if err != nil {
			return hdr, fmt.Errorf("exr attribute '%s' type: %w", name, err)
		}
		var size int32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return hdr, fmt.Errorf("exr attribute '%s' size: %w", name, err)
		}
		if size < 0 || int64(size) > int64(r.Len()) {
			return hdr, fmt.Errorf("exr attribute '%s': bad size %d", name, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return hdr, fmt.Errorf("exr attribute '%s': %w", name, err)
		}

		switch name {
		case "channels":
			if typ != "chlist" {
				return hdr, fmt.Errorf("exr channels has type '%s'", typ)
			}
			if hdr.channels, err = parseEXRChannels(payload); err != nil {
				return hdr, err
			}
		case "compression":
			if len(payload) != 1 {
				return hdr, errors.New("exr compression attribute malformed")
			}
			hdr.compression = exrCompression(payload[0])
		case "dataWindow":
			if typ != "box2i" || len(payload) != 16 {
				return hdr, errors.New("exr dataWindow attribute malformed")
			}
			for i := range hdr.dataWindow {
				hdr.dataWindow[i] = int32(binary.LittleEndian.Uint32(payload[4*i:]))
			}
		case "tiles":
			return hdr, errors.New("tiled OpenEXR not supported")
		}

		if _, exists := required[name]; exists {
			required[name] = true
		}
	}

	for name, found := range required {
		if !found {
			return hdr, fmt.Errorf("exr header missing '%s'", name)
		}
	}

	if hdr.compression.linesPerBlock() == 0 {
		return hdr, fmt.Errorf("unsupported OpenEXR compression '%s'", hdr.compression)
	}
	if w, h := hdr.width(), hdr.height(); w <= 0 || h <= 0 || int64(w)*int64(h) > 1<<30 {
		return hdr, fmt.Errorf("bad OpenEXR data window %v", hdr.dataWindow)
	}
	if len(hdr.channels) == 0 {
		return hdr, errors.New("exr has no channels")
	}
	for _, ch := range hdr.channels {
		if ch.xSampling != 1 || ch.ySampling != 1 {
			return hdr, fmt.Errorf("exr channel '%s' is subsampled", ch.name)
		}
	}
	assignEXRRoles(hdr.channels)
	if !hdr.has(exrRoleR) && !hdr.has(exrRoleG) && !hdr.has(exrRoleB) && !hdr.has(exrRoleY) {
		return hdr, errors.New("exr has no R, G, B or Y channel")
	}

	return hdr, nil
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)
	channels := []exrChannel{}

	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, fmt.Errorf("exr chlist: %w", err)
		}
		if name == "" {
			break
		}

		var desc struct {
			PixelType  int32
			PLinear    uint8
			Reserved   [3]uint8
			XSampling  int32
			YSampling  int32
		}
		if err := binary.Read(r, binary.LittleEndian, &desc); err != nil {
			return nil, fmt.Errorf("exr chlist '%s': %w", name, err)
		}

		pt := exrPixelType(desc.PixelType)
		if pt.size() == 0 {
			return nil, fmt.Errorf("exr channel '%s' has unknown pixel type %d", name, desc.PixelType)
		}
		channels = append(channels, exrChannel{
			name:      name,
			pixelType: pt,
			xSampling: desc.XSampling,
			ySampling: desc.YSampling,
		})
	}

	return channels, nil
}

func roleForName(name string) exrRole {
	switch strings.ToUpper(name) {
	case "R": return exrRoleR
	case "G": return exrRoleG
	case "B": return exrRoleB
	case "A", "ALPHA": return exrRoleA
	case "Y": return exrRoleY
	}
	return exrRoleSkip
}

// assignEXRRoles prefers the unprefixed channels ("R"); if there are
// none it falls back to the first layer it finds ("beauty.R").
func assignEXRRoles(channels []exrChannel) {
	found := false
	for i := range channels {
		channels[i].role = roleForName(channels[i].name)
		if channels[i].role != exrRoleSkip {
			found = true
		}
	}
	if found {
		return
	}

	taken := map[exrRole]bool{}
	for i := range channels {
		idx := strings.LastIndex(channels[i].name, ".")
		if idx < 0 {
			continue
		}
		role := roleForName(channels[i].name[idx+1:])
		if role != exrRoleSkip && !taken[role] {
			channels[i].role = role
			taken[role] = true
		}
	}
}

func exrDecompress(c exrCompression, data []byte, expected int) ([]byte, error) {
	// The writer stores a chunk raw if compressing it didn't make it smaller
	if c == exrCompressionNone || len(data) == expected {
		if len(data) != expected {
			return nil, fmt.Errorf("block is %d bytes, expected %d", len(data), expected)
		}
		return data, nil
	}

	var unpacked []byte

	switch c {
	case exrCompressionRLE:
		out, err := exrUnRLE(data, expected)
		if err != nil {
			return nil, err
		}
		unpacked = out

	case exrCompressionZIPS, exrCompressionZIP:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		out := make([]byte, expected)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		// Reading to the end is what makes zlib check the adler32 sum
		if n, err := zr.Read(make([]byte, 1)); n != 0 || err != io.EOF {
			return nil, fmt.Errorf("inflate: stream longer than %d bytes, or bad checksum (%v)", expected, err)
		}
		unpacked = out

	default:
		return nil, fmt.Errorf("compression '%s' not supported", c)
	}

	exrUndoPredictor(unpacked)
	return exrDeinterleave(unpacked), nil
}

// exrUnRLE expands OpenEXR's byte run length encoding: a negative count
// byte -n is followed by n literal bytes, a count n>=0 by one byte that
// repeats n+1 times.
func exrUnRLE(in []byte, expected int) ([]byte, error) {
	out := make([]byte, 0, expected)
	for i := 0; i < len(in); {
		n := int(int8(in[i]))
		i++
		if n < 0 {
			if i-n > len(in) {
				return nil, errors.New("rle literal run overruns block")
			}
			out = append(out, in[i:i-n]...)
			i -= n
		} else {
			if i >= len(in) {
				return nil, errors.New("rle repeat run overruns block")
			}
			for k := 0; k <= n; k++ {
				out = append(out, in[i])
			}
			i++
		}
		if len(out) > expected {
			return nil, errors.New("rle block expands past its scanlines")
		}
	}
	if len(out) != expected {
		return nil, fmt.Errorf("rle block expands to %d bytes, expected %d", len(out), expected)
	}
	return out, nil
}

func exrUndoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}

// exrDeinterleave undoes the writer's split of even and odd bytes into two halves.
func exrDeinterleave(data []byte) []byte {
	out := make([]byte, len(data))
	half := (len(data) + 1) / 2
	t1, t2 := data[:half], data[half:]
	for i := 0; i < len(data); i++ {
		if i%2 == 0 {
			out[i] = t1[i/2]
		} else {
			out[i] = t2[i/2]
		}
	}
	return out
}

// exrDecodeBlock copies the scanlines in one chunk into buf. Within a
// scanline the channels are stored one after another, each as a full row.
// The caller has already checked the chunk is exactly the right size.
func exrDecodeBlock(buf *pixbuf.Buffer, hdr exrHeader, startY, lines int, data []byte, gray bool) {
	width := hdr.width()
	offset := 0

	for row := 0; row < lines; row++ {
		base := buf.PixOffset(0, startY+row)

		for _, ch := range hdr.channels {
			bpp := ch.pixelType.size()
			line := data[offset : offset+width*bpp]
			offset += width * bpp

			var dst []int
			switch ch.role {
			case exrRoleR: dst = []int{0}
			case exrRoleG: dst = []int{1}
			case exrRoleB: dst = []int{2}
			case exrRoleA: dst = []int{3}
			case exrRoleY:
				if !gray {
					continue // Luma alongside real RGB; RGB wins
				}
				dst = []int{0, 1, 2}
			default:
				continue
			}

			for x := 0; x < width; x++ {
				v := exrSample(ch.pixelType, line, x)
				for _, c := range dst {
					buf.Pix[base + x*buf.Channels + c] = v
				}
			}
		}
	}
}

func exrSample(t exrPixelType, line []byte, x int) float32 {
	switch t {
	case exrHalf:
		return float16.Frombits(binary.LittleEndian.Uint16(line[2*x:])).Float32()
	case exrFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(line[4*x:]))
	case exrUint:
		return float32(binary.LittleEndian.Uint32(line[4*x:]))
	}
	return 0
}

func readNullString(r *bytes.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", io.ErrUnexpectedEOF
		}
		if b == 0 {
			return sb.String(), nil
		}
		if sb.Len() >= 255 {
			return "", errors.New("string too long")
		}
		sb.WriteByte(b)
	}
}
