package tonemap

import(
	"fmt"
	"math"

	"github.com/abworrall/hdrview/pkg/hdrerr"
)

const DefaultGamma = 2.2

// Params is what the exposure and gamma sliders control.
type Params struct {
	Exposure  float64  // stops; each +1 doubles brightness
	InvGamma  float64  // 1/gamma, applied as v^InvGamma
}

func DefaultParams() Params {
	return Params{Exposure: 0, InvGamma: 1 / DefaultGamma}
}

// NewParams takes the gamma as the user sees it (e.g. 2.2) and stores its
// inverse.
func NewParams(exposure, gamma float64) (Params, error) {
	if math.IsNaN(gamma) || math.IsInf(gamma, 0) || gamma <= 0 {
		return Params{}, hdrerr.NewInvalidParameter("gamma", gamma, "must be a positive finite number")
	}
	p := Params{Exposure: exposure, InvGamma: 1 / gamma}
	return p, p.Validate()
}

func (p Params)Validate() error {
	if math.IsNaN(p.Exposure) || math.IsInf(p.Exposure, 0) {
		return hdrerr.NewInvalidParameter("exposure", p.Exposure, "must be finite")
	}
	if math.IsNaN(p.InvGamma) || math.IsInf(p.InvGamma, 0) || p.InvGamma <= 0 {
		return hdrerr.NewInvalidParameter("invGamma", p.InvGamma, "must be a positive finite number")
	}
	return nil
}

func (p Params)Gamma() float64 { return 1 / p.InvGamma }

func (p Params)String() string {
	return fmt.Sprintf("exposure %+.2f stops, gamma %.2f", p.Exposure, p.Gamma())
}
