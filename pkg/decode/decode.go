package decode

import(
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/pixbuf"
)

type Format string

const(
	FormatEXR      Format = "exr"
	FormatRadiance Format = "hdr"
	FormatJPEG     Format = "jpeg"
	FormatPNG      Format = "png"
	FormatTIFF     Format = "tiff"
	FormatUnknown  Format = ""
)

// IsHDR is true for the formats that can hold values outside [0,1].
func (f Format)IsHDR() bool { return f == FormatEXR || f == FormatRadiance }

// An Image is a fully decoded file: linear float pixels, plus what we
// learned about the source along the way.
type Image struct {
	Buffer         *pixbuf.Buffer
	Format
	HasAlpha        bool          // Buffer has 4 channels, the 4th is alpha
	SourceChannels  int           // How many channels the file actually had
	Exif           *ExifSummary   // Only for JPEG/TIFF, and only if present
	ExifErr         error         // Why a JPEG/TIFF has no Exif
}

// HDR reports whether the source format carries high dynamic range data.
func (img Image)HDR() bool { return img.Format.IsHDR() }

func (img Image)String() string {
	return fmt.Sprintf("%s %s (%d source channels, alpha=%v)", img.Format, img.Buffer, img.SourceChannels, img.HasAlpha)
}

var extensions = map[string]Format{
	".exr":  FormatEXR,
	".hdr":  FormatRadiance,
	".pic":  FormatRadiance,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

// FormatFromExtension looks only at the filename.
func FormatFromExtension(filename string) Format {
	return extensions[strings.ToLower(filepath.Ext(filename))]
}

// Sniff looks at the leading bytes of a file.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte{0x76, 0x2f, 0x31, 0x01}): return FormatEXR
	case bytes.HasPrefix(data, []byte("#?")):                   return FormatRadiance
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):    return FormatPNG
	case bytes.HasPrefix(data, []byte{0xff, 0xd8}):             return FormatJPEG
	case bytes.HasPrefix(data, []byte("II*\x00")),
		bytes.HasPrefix(data, []byte("MM\x00*")):                 return FormatTIFF
	}
	return FormatUnknown
}

// File reads and decodes the image at path. A missing or unreadable
// path gives a *hdrerr.NotFoundError; anything wrong with the contents
// gives a *hdrerr.DecodeError.
func File(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.As(err, &pathErr) {
			return nil, &hdrerr.NotFoundError{Path: path, Err: err}
		}
		return nil, hdrerr.NewDecodeError(path, "", err)
	}

	return Bytes(data, path)
}

// Bytes decodes an in-memory file. The name is used for the extension
// fallback and for error messages.
func Bytes(data []byte, name string) (*Image, error) {
	if len(data) == 0 {
		return nil, hdrerr.NewDecodeError(name, "", errors.New("empty file"))
	}

	format := Sniff(data)
	if format == FormatUnknown {
		format = FormatFromExtension(name)
	}

	var img *Image
	var err error

	switch format {
	case FormatEXR:      img, err = decodeEXR(data)
	case FormatRadiance: img, err = decodeRadiance(data)
	case FormatJPEG, FormatPNG, FormatTIFF:
		img, err = decodeLDR(data, format)
	default:
		return nil, hdrerr.NewDecodeError(name, "", fmt.Errorf("unrecognized image format"))
	}

	if err != nil {
		return nil, hdrerr.NewDecodeError(name, string(format), err)
	}
	if err := img.Buffer.Validate(); err != nil {
		return nil, hdrerr.NewDecodeError(name, string(format), err)
	}
	img.Format = format
	img.Buffer.Sanitize()

	if format == FormatJPEG || format == FormatTIFF {
		img.Exif, img.ExifErr = readExif(data)
	}

	return img, nil
}
