// Package hdrview loads an image file into a display-ready Record, and
// tone maps it for display.
package hdrview

import(
	"context"
	"log"

	"github.com/abworrall/hdrview/pkg/decode"
	"github.com/abworrall/hdrview/pkg/drstats"
	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/resample"
	"github.com/abworrall/hdrview/pkg/timing"
)

// Load decodes path, measures it (HDR formats only) and resizes it to
// targetWidth, using the default config for everything else.
func Load(path string, targetWidth int) (*Record, error) {
	cfg := NewConfig()
	cfg.TargetWidth = targetWidth
	return LoadWithConfig(context.Background(), path, cfg)
}

// LoadWithConfig is Load with all the knobs. Nothing is returned unless
// every stage succeeds. The context is checked between stages, so a load
// that is no longer wanted stops early with ctx.Err().
func LoadWithConfig(ctx context.Context, path string, cfg Config) (*Record, error) {
	if cfg.TargetWidth <= 0 {
		return nil, hdrerr.NewInvalidParameter("targetWidth", cfg.TargetWidth, "must be positive")
	}
	defer timing.Start(cfg.Verbosity, "load " + path)()

	stop := timing.Start(cfg.Verbosity, "decode")
	img, err := decode.File(path)
	stop()
	if err != nil {
		return nil, err
	}
	if img.ExifErr != nil && cfg.Verbosity > 1 {
		log.Printf("%s: no usable exif: %v\n", path, img.ExifErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := &Record{
		Path:             path,
		Format:           img.Format,
		OriginalWidth:    img.Buffer.Width,
		OriginalHeight:   img.Buffer.Height,
		OriginalChannels: img.SourceChannels,
		NormalizeScale:   1,
		Exif:             img.Exif,
	}

	// Measured before resizing: averaging would flatten the extremes.
	if img.HDR() {
		stop = timing.Start(cfg.Verbosity, "analyze")
		rec.stats = drstats.Analyze(img.Buffer)
		rec.hasStats = true
		stop()
		if cfg.Verbosity > 0 {
			log.Printf("%s: %s\n", path, rec.stats)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop = timing.Start(cfg.Verbosity, "resize")
	pix, err := resample.Resize(img.Buffer, cfg.TargetWidth)
	stop()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.DropOpaqueAlpha && pix.AlphaIsOpaque() {
		pix = pix.DropAlpha()
	}

	if cfg.NormalizePercentile > 0 && img.HDR() {
		pix, rec.NormalizeScale = drstats.Normalize(pix, cfg.NormalizePercentile)
	}

	rec.Pixels = pix
	rec.ResizedWidth, rec.ResizedHeight = pix.Width, pix.Height
	rec.HasAlpha = pix.HasAlpha()

	if cfg.Verbosity > 0 {
		log.Printf("loaded %s\n", rec)
	}
	return rec, nil
}
