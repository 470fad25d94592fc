package hdrview

import(
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/mdouchement/hdr/codec/rgbe"

	"github.com/abworrall/hdrview/pkg/drstats"
	"github.com/abworrall/hdrview/pkg/emath"
	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/pixbuf"
	"github.com/abworrall/hdrview/pkg/tonemap"
)

// Render tone maps the record's pixels for display, with the config's
// tone mapper. The result is display-referred; see pixbuf.ToImage.
func Render(rec *Record, cfg Config, proc *tonemap.Processor) (*pixbuf.Buffer, error) {
	if cfg.Tonemapper == "" || cfg.Tonemapper == tonemap.ExposureGamma {
		params, err := cfg.Params()
		if err != nil {
			return nil, err
		}
		return proc.Apply(rec.Pixels, params), nil
	}
	return tonemap.ApplyOperator(cfg.Tonemapper, rec.Pixels)
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		if err := png.Encode(writer, img); err != nil {
			return fmt.Errorf("WritePNG '%s': %v", filename, err)
		}
		return writer.Close()
	}
}

// WriteHDR saves the color channels of a linear buffer as a Radiance
// RGBE file, which photoshop and most HDR tools will open.
func WriteHDR(buf *pixbuf.Buffer, filename string) error {
	if err := buf.Validate(); err != nil {
		return hdrerr.NewInvalidParameter("buffer", buf.String(), err.Error())
	}
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("WriteHDR, open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		if err := rgbe.Encode(writer, buf); err != nil {
			return fmt.Errorf("WriteHDR, encoding RGBE file '%s': %v", filename, err)
		}
		return writer.Close()
	}
}

// LuminanceMap is the log2 luminance of the record's pixels, halved in
// size until it is no wider than maxWidth. A maxWidth <= 0 means full size.
func LuminanceMap(rec *Record, maxWidth int) emath.FloatGrid {
	grid := drstats.LuminanceGrid(rec.Pixels)
	for maxWidth > 0 && grid.Dx() > maxWidth && grid.Dx() >= 2 && grid.Dy() >= 2 {
		grid = grid.DownSample()
	}
	return grid
}

// WriteLuminanceMap saves a captioned grayscale picture of log2 luminance,
// handy for seeing where the range in an HDR image actually is.
func WriteLuminanceMap(rec *Record, maxWidth int, filename string) error {
	grid := LuminanceMap(rec, maxWidth)
	caption := "log2 luminance"
	if st, ok := rec.DynamicRange(); ok {
		caption = fmt.Sprintf("log2 luminance, %s stops", drstats.FormatStops(st.Stops))
	}
	return grid.ToImg(caption, filename)
}
