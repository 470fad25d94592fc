package main

import(
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abworrall/hdrview/pkg/hdrview"
	"github.com/abworrall/hdrview/pkg/pixbuf"
	"github.com/abworrall/hdrview/pkg/timing"
	"github.com/abworrall/hdrview/pkg/tonemap"
)

var(
	fConfigFilename string
	fVerbosity int
	fWidth int
	fExposure float64
	fGamma float64
	fTonemapper string
	fNormalize float64
	fDropAlpha bool
	fWorkers int
	fOutputFilename string
	fHDRFilename string
	fLumMapFilename string
	fLumMapWidth int
	fBench int
)

func init() {
	flag.StringVar(&fConfigFilename, "config", "", "yaml config file; flags override it")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.IntVar(&fWidth, "width", hdrview.DefaultTargetWidth, "resize the image to this width")
	flag.Float64Var(&fExposure, "exposure", 0, "exposure correction, in stops")
	flag.Float64Var(&fGamma, "gamma", tonemap.DefaultGamma, "display gamma")
	flag.StringVar(&fTonemapper, "tonemapper", tonemap.ExposureGamma, fmt.Sprintf("%s, or one of %v", tonemap.ExposureGamma, tonemap.Operators()))
	flag.Float64Var(&fNormalize, "normalize", 0, "scale HDR input so this percentile (e.g. 0.99) is 1.0; 0 is off")
	flag.BoolVar(&fDropAlpha, "dropalpha", false, "discard the alpha channel if it is fully opaque")
	flag.IntVar(&fWorkers, "workers", 0, "tone mapping goroutines; 0 is one per CPU")
	flag.StringVar(&fOutputFilename, "o", "out.png", "name of output image file")
	flag.StringVar(&fHDRFilename, "hdr", "", "also write the resized linear image as a Radiance .hdr")
	flag.StringVar(&fLumMapFilename, "lummap", "", "also write a log2 luminance map as a png")
	flag.IntVar(&fLumMapWidth, "lummapwidth", 1024, "halve the luminance map until it is no wider than this; 0 is full size")
	flag.IntVar(&fBench, "bench", 0, "tone map this many times and report the latency distribution")
	flag.Parse()
}

func main() {
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] image.{exr,hdr,jpg,png,tif}\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := hdrview.NewConfig()
	if fConfigFilename != "" {
		var err error
		if cfg, err = hdrview.LoadConfig(fConfigFilename); err != nil {
			log.Fatal(err)
		}
	}

	// Only flags given on the command line override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":          cfg.Verbosity = fVerbosity
		case "width":      cfg.TargetWidth = fWidth
		case "exposure":   cfg.Exposure = fExposure
		case "gamma":      cfg.Gamma = fGamma
		case "tonemapper": cfg.Tonemapper = fTonemapper
		case "normalize":  cfg.NormalizePercentile = fNormalize
		case "dropalpha":  cfg.DropOpaqueAlpha = fDropAlpha
		case "workers":    cfg.Workers = fWorkers
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	rec, err := hdrview.LoadWithConfig(context.Background(), path, cfg)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(rec.Summary())
	fmt.Println(rec)

	proc := cfg.Processor()
	if fBench > 0 {
		proc.Latency = timing.NewHistogram(time.Minute)
	}

	out, err := hdrview.Render(rec, cfg, proc)
	if err != nil {
		log.Fatal(err)
	}
	if err := hdrview.WritePNG(pixbuf.ToImage(out), fOutputFilename); err != nil {
		log.Fatal(err)
	}
	log.Printf("LDR output file written '%s'\n", fOutputFilename)

	if fHDRFilename != "" {
		if err := hdrview.WriteHDR(rec.Pixels, fHDRFilename); err != nil {
			log.Fatal(err)
		}
		log.Printf("HDR output file written '%s'\n", fHDRFilename)
	}

	if fLumMapFilename != "" {
		if err := hdrview.WriteLuminanceMap(rec, fLumMapWidth, fLumMapFilename); err != nil {
			log.Fatal(err)
		}
		log.Printf("luminance map written '%s'\n", fLumMapFilename)
	}

	if fBench > 0 {
		params, _ := cfg.Params()
		proc.Latency.Reset()
		for i := 0; i < fBench; i++ {
			params.Exposure = cfg.Exposure + float64(i%20)/10 - 1 // sweep, like a slider drag
			proc.Apply(rec.Pixels, params)
		}
		fmt.Printf("exposure+gamma on %s, %d workers: %s\n", rec.Pixels, proc.Workers, proc.Latency)
	}
}
