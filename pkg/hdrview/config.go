package hdrview

import(
	"fmt"
	"log"
	"math"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/tonemap"
)

const DefaultTargetWidth = 1024

type Config struct {
	Verbosity            int

	TargetWidth          int       // Everything is resized to this width on load
	DropOpaqueAlpha      bool      // If all alpha is 1.0, keep just RGB
	NormalizePercentile  float64   // e.g. 0.99: scale so the top 1% starts at 1.0. 0 is off.

	Exposure             float64   // stops
	Gamma                float64
	Tonemapper           string    // tonemap.ExposureGamma, or a global operator name
	Workers              int       // for tone mapping; 0 is one per CPU
}

func NewConfig() Config {
	return Config{
		TargetWidth: DefaultTargetWidth,
		Gamma:       tonemap.DefaultGamma,
		Tonemapper:  tonemap.ExposureGamma,
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads a yaml file; fields it doesn't mention keep their defaults.
func LoadConfig(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("LoadConfig '%s': %v", filename, err)
	}
	c, err := newConfigFromYaml(b)
	if err != nil {
		return Config{}, fmt.Errorf("LoadConfig '%s': %v", filename, err)
	}
	return c, c.Validate()
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

func (c Config)Validate() error {
	if c.TargetWidth <= 0 {
		return hdrerr.NewInvalidParameter("targetwidth", c.TargetWidth, "must be positive")
	}
	if p := c.NormalizePercentile; math.IsNaN(p) || p < 0 || p >= 1 {
		return hdrerr.NewInvalidParameter("normalizepercentile", p, "must be 0 (off), or in (0,1)")
	}
	if c.Workers < 0 {
		return hdrerr.NewInvalidParameter("workers", c.Workers, "must not be negative")
	}
	if c.Tonemapper != tonemap.ExposureGamma && c.Tonemapper != "" {
		found := false
		for _, name := range tonemap.Operators() {
			found = found || name == c.Tonemapper
		}
		if !found {
			return hdrerr.NewInvalidParameter("tonemapper", c.Tonemapper, fmt.Sprintf("want %s or one of %v", tonemap.ExposureGamma, tonemap.Operators()))
		}
	}
	_, err := c.Params()
	return err
}

// Params is the exposure/gamma pair from the config.
func (c Config)Params() (tonemap.Params, error) {
	return tonemap.NewParams(c.Exposure, c.Gamma)
}

// Processor is a tone mapper set up with the config's worker count.
func (c Config)Processor() *tonemap.Processor {
	return &tonemap.Processor{Workers: c.Workers}
}
