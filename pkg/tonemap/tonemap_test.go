package tonemap

import(
	"errors"
	"math"
	"testing"
	"time"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/pixbuf"
	"github.com/abworrall/hdrview/pkg/timing"
)

// testBuffer has a spread of HDR values, some negative and non-finite
// samples, and alpha that varies.
func testBuffer(w, h, c int) *pixbuf.Buffer {
	buf := pixbuf.New(w, h, c)
	for i := range buf.Pix {
		buf.Pix[i] = float32(math.Exp2(float64(i%41)/2 - 8))
	}
	for i := 0; i < len(buf.Pix); i += c {
		if c == 4 {
			buf.Pix[i+3] = float32(i%7) / 6
		}
	}
	buf.Pix[0] = -3
	buf.Pix[1] = float32(math.NaN())
	buf.Pix[c+2] = float32(math.Inf(1))
	return buf
}

func equalBits(t *testing.T, what string, a, b *pixbuf.Buffer) {
	t.Helper()
	if len(a.Pix) != len(b.Pix) {
		t.Fatalf("%s: lengths %d, %d", what, len(a.Pix), len(b.Pix))
	}
	for i := range a.Pix {
		if math.Float32bits(a.Pix[i]) != math.Float32bits(b.Pix[i]) {
			t.Fatalf("%s: sample %d: %v != %v", what, i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestIdentities(t *testing.T) {
	buf := testBuffer(20, 10, 4)

	exp := ApplyExposureCorrection(buf, 0)
	gam := ApplyGammaCorrection(buf, 1)
	for i, v := range buf.Pix {
		want := pixbuf.Finite(v)
		if exp.Pix[i] != want {
			t.Fatalf("exposure 0, sample %d: %v != %v", i, exp.Pix[i], want)
		}
		if i%4 != 3 && want < 0 {
			want = 0
		}
		if gam.Pix[i] != want {
			t.Fatalf("gamma 1, sample %d: %v != %v", i, gam.Pix[i], want)
		}
	}
}

func TestExposureDoubles(t *testing.T) {
	buf := pixbuf.New(2, 1, 3)
	copy(buf.Pix, []float32{0.25, 1, 3, 100, 0, 7})

	out := ApplyExposureCorrection(buf, 1)
	for i, v := range buf.Pix {
		if out.Pix[i] != 2*v {
			t.Errorf("sample %d: %v, want %v", i, out.Pix[i], 2*v)
		}
	}

	out = ApplyExposureCorrection(buf, -2)
	if out.Pix[1] != 0.25 {
		t.Errorf("-2 stops on 1.0 gave %v", out.Pix[1])
	}
}

func TestGammaCurve(t *testing.T) {
	buf := pixbuf.New(1, 1, 3)
	copy(buf.Pix, []float32{0.25, 4, 0})

	out := ApplyGammaCorrection(buf, 0.5)
	if out.Pix[0] != 0.5 || out.Pix[1] != 2 || out.Pix[2] != 0 {
		t.Errorf("sqrt: got %v", out.Pix)
	}

	// Nonsense inverse gammas fall back to the identity
	for _, g := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		out := ApplyGammaCorrection(buf, g)
		if out.Pix[0] != 0.25 || out.Pix[1] != 4 {
			t.Errorf("invGamma %v: got %v", g, out.Pix)
		}
	}
}

func TestFusionEquivalence(t *testing.T) {
	buf := testBuffer(300, 250, 4) // big enough to go parallel

	for _, stops := range []float64{-5, -0.3, 0, 1.7, 12} {
		for _, inv := range []float64{1 / 2.2, 1, 1 / 1.8, 2.5} {
			fused := ApplyExposureGammaCorrection(buf, stops, inv)
			composed := ApplyGammaCorrection(ApplyExposureCorrection(buf, stops), inv)
			equalBits(t, "fused vs composed", fused, composed)
		}
	}
}

func TestSanitizedAndAlpha(t *testing.T) {
	buf := testBuffer(16, 16, 4)
	out := ApplyExposureGammaCorrection(buf, 200, 1/2.2) // 2^200 overflows float32

	for i, v := range out.Pix {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) || v < 0 {
			t.Fatalf("sample %d = %v", i, v)
		}
		if i%4 == 3 && v != buf.Pix[i] {
			t.Fatalf("alpha %d changed: %v -> %v", i, buf.Pix[i], v)
		}
	}
}

func TestPureAndDeterministic(t *testing.T) {
	buf := testBuffer(300, 300, 3)
	orig := buf.Clone()

	a := ApplyExposureGammaCorrection(buf, 1.5, 1/2.2)
	b := ApplyExposureGammaCorrection(buf, 1.5, 1/2.2)
	equalBits(t, "repeat", a, b)
	equalBits(t, "input untouched", buf, orig)
	if &a.Pix[0] == &buf.Pix[0] {
		t.Errorf("output aliases input")
	}
	if a.Width != buf.Width || a.Height != buf.Height || a.Channels != buf.Channels {
		t.Errorf("geometry changed: %s", a)
	}
}

func TestWorkerCountIrrelevant(t *testing.T) {
	buf := testBuffer(257, 199, 4)
	want := (&Processor{Workers: 1}).ApplyExposureGammaCorrection(buf, 0.7, 1/2.4)

	for _, n := range []int{2, 3, 16, 100} {
		p := &Processor{Workers: n, Latency: timing.NewHistogram(time.Minute)}
		got := p.Apply(buf, Params{Exposure: 0.7, InvGamma: 1 / 2.4})
		equalBits(t, "workers", want, got)
		if p.Latency.Count() != 1 {
			t.Errorf("latency count = %d", p.Latency.Count())
		}
	}
}

func TestParams(t *testing.T) {
	p := DefaultParams()
	if p.Exposure != 0 || math.Abs(p.Gamma()-2.2) > 1e-12 {
		t.Errorf("defaults: %s", p)
	}
	if p, err := NewParams(1, 2); err != nil || p.InvGamma != 0.5 {
		t.Errorf("NewParams(1,2) = %v, %v", p, err)
	}

	bad := []struct {
		exposure, gamma  float64
	}{
		{0, 0},
		{0, -2.2},
		{0, math.NaN()},
		{0, math.Inf(1)},
		{math.NaN(), 2.2},
		{math.Inf(-1), 2.2},
	}
	for _, tc := range bad {
		_, err := NewParams(tc.exposure, tc.gamma)
		var ipe *hdrerr.InvalidParameterError
		if !errors.As(err, &ipe) {
			t.Errorf("NewParams(%v,%v): expected InvalidParameterError, got %v", tc.exposure, tc.gamma, err)
		}
	}
}

func TestApplyOperator(t *testing.T) {
	buf := testBuffer(32, 16, 4)
	buf.Sanitize()
	for i := 0; i < len(buf.Pix); i += 4 {
		for k := 0; k < 3; k++ {
			if buf.Pix[i+k] < 0 {
				buf.Pix[i+k] = 0
			}
		}
	}

	for _, name := range []string{"linear", "reinhard05", "drago03"} {
		out, err := ApplyOperator(name, buf)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if out.Width != 32 || out.Height != 16 || out.Channels != 4 {
			t.Fatalf("%s: geometry %s", name, out)
		}
		for i, v := range out.Pix {
			if i%4 == 3 {
				if v != buf.Pix[i] {
					t.Fatalf("%s: alpha %d not carried over", name, i)
				}
				continue
			}
			if v < 0 || v > 1 {
				t.Fatalf("%s: sample %d = %v outside [0,1]", name, i, v)
			}
		}
	}

	_, err := ApplyOperator("fattal02", buf)
	var ipe *hdrerr.InvalidParameterError
	if !errors.As(err, &ipe) {
		t.Errorf("unknown operator: got %v", err)
	}

	if len(Operators()) != 5 || Operators()[0] != "drago03" {
		t.Errorf("Operators() = %v", Operators())
	}
}
