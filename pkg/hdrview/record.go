package hdrview

import(
	"fmt"

	"github.com/abworrall/hdrview/pkg/decode"
	"github.com/abworrall/hdrview/pkg/drstats"
	"github.com/abworrall/hdrview/pkg/pixbuf"
)

// A Record is a loaded image, ready for display: resized, but not yet tone
// mapped. It is built in one go by Load and not changed after that, so it
// can be shared freely between goroutines.
type Record struct {
	Path              string
	Format            decode.Format

	OriginalWidth     int
	OriginalHeight    int
	OriginalChannels  int     // What the file had, e.g. 1 for a Y-only EXR
	ResizedWidth      int
	ResizedHeight     int
	HasAlpha          bool

	Pixels           *pixbuf.Buffer         // ResizedWidth x ResizedHeight, linear
	NormalizeScale    float64               // 1 unless normalization was applied
	Exif             *decode.ExifSummary

	stats             drstats.Stats         // only meaningful if hasStats
	hasStats          bool
}

// DynamicRange returns the stats measured on the decoded image, and false
// for LDR images, which have none.
func (r *Record)DynamicRange() (drstats.Stats, bool) {
	return r.stats, r.hasStats
}

func (r *Record)HasDynamicRange() bool { return r.hasStats }

func (r *Record)HDR() bool { return r.Format.IsHDR() }

// Channels is the number of channels in Pixels (3, or 4 with alpha).
func (r *Record)Channels() int { return r.Pixels.Channels }

// String is the one-line description shown under the image.
func (r *Record)String() string {
	s := fmt.Sprintf("Image: %s - %d x %d x %d", r.Path, r.ResizedWidth, r.ResizedHeight, r.Channels())
	if st, ok := r.DynamicRange(); ok {
		s += fmt.Sprintf(" - Dynamic range: %s, stops: %s", drstats.FormatDynamicRange(st.DynamicRange), drstats.FormatStops(st.Stops))
	}
	return s
}

func (r *Record)Summary() string {
	s := fmt.Sprintf("%s\n", r.Path)
	s += fmt.Sprintf("  format      : %s\n", r.Format)
	s += fmt.Sprintf("  original    : %d x %d, %d channels\n", r.OriginalWidth, r.OriginalHeight, r.OriginalChannels)
	s += fmt.Sprintf("  resized     : %d x %d, %d channels (alpha=%v)\n", r.ResizedWidth, r.ResizedHeight, r.Channels(), r.HasAlpha)
	if st, ok := r.DynamicRange(); ok {
		s += fmt.Sprintf("  range       : %s\n", st)
		s += fmt.Sprintf("  luminance   : %.6g .. %.6g\n", st.MinLuminance, st.MaxLuminance)
	} else {
		s += "  range       : LDR, not measured\n"
	}
	if r.NormalizeScale != 1 {
		s += fmt.Sprintf("  normalized  : x%.6g\n", r.NormalizeScale)
	}
	if r.Exif != nil {
		s += fmt.Sprintf("  exif        : %s\n", r.Exif)
	}
	return s
}
