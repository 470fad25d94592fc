package session

import(
	"context"
	"errors"
	"image"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/abworrall/hdrview/internal/fixtures"
	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/hdrview"
	"github.com/abworrall/hdrview/pkg/tonemap"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	cfg := hdrview.NewConfig()
	cfg.TargetWidth = 64
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func exrFile(t *testing.T, name string) string {
	return fixtures.WriteEXR(t, name, fixtures.EXR{
		Width: 32, Height: 16,
		Channels:  []string{"B", "G", "R"},
		PixelType: fixtures.Half,
		Sample:    fixtures.Gradient(32, 16, 0.05, 50),
	})
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case e := <-s.Events():
		return e
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a load event")
	}
	return Event{}
}

// waitForFrame reads frames until one matches want.
func waitForFrame(t *testing.T, s *Session, want tonemap.Params) Frame {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case f := <-s.Frames():
			if f.Params == want {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a frame with %s", want)
		}
	}
}

func TestLoadAndRender(t *testing.T) {
	s := newSession(t)

	if _, err := s.Render(); !errors.Is(err, ErrNoImage) {
		t.Errorf("Render before load: %v", err)
	}

	path := exrFile(t, "a.exr")
	if err := s.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	e := nextEvent(t, s)
	if e.Err != nil || e.Record == nil || e.Path != path {
		t.Fatalf("event %+v", e)
	}
	if s.Record() != e.Record || s.Record().ResizedWidth != 64 {
		t.Fatalf("record not installed")
	}

	f := waitForFrame(t, s, tonemap.DefaultParams())
	if f.Record != e.Record || f.Pixels.Width != 64 || f.Pixels.Height != 32 {
		t.Errorf("frame %d: %s", f.Generation, f.Pixels)
	}
}

func TestSliderBurstEndsOnLastValue(t *testing.T) {
	s := newSession(t)
	if err := s.Load(context.Background(), exrFile(t, "a.exr")); err != nil {
		t.Fatal(err)
	}
	if e := nextEvent(t, s); e.Err != nil {
		t.Fatal(e.Err)
	}

	for i := 0; i <= 100; i++ {
		if err := s.SetExposure(float64(i) / 25); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetGamma(1.8); err != nil {
		t.Fatal(err)
	}

	want := tonemap.Params{Exposure: 4, InvGamma: 1 / 1.8}
	if s.Params() != want {
		t.Fatalf("Params() = %s", s.Params())
	}

	f := waitForFrame(t, s, want)
	direct := tonemap.ApplyExposureGammaCorrection(s.Record().Pixels, 4, 1/1.8)
	for i := range direct.Pix {
		if direct.Pix[i] != f.Pixels.Pix[i] {
			t.Fatalf("published frame differs from a direct render at %d", i)
		}
	}

	// Nothing older may turn up after the newest frame
	select {
	case late := <-s.Frames():
		if late.Params != want {
			t.Errorf("stale frame published after the latest: %s", late.Params)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInvalidParams(t *testing.T) {
	s := newSession(t)
	before := s.Params()

	var ipe *hdrerr.InvalidParameterError
	for _, g := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := s.SetGamma(g); !errors.As(err, &ipe) {
			t.Errorf("SetGamma(%v) = %v", g, err)
		}
	}
	if err := s.SetExposure(math.NaN()); !errors.As(err, &ipe) {
		t.Errorf("SetExposure(NaN) = %v", err)
	}
	if s.Params() != before {
		t.Errorf("params changed by invalid input: %s", s.Params())
	}
}

func TestFailedLoadKeepsRecord(t *testing.T) {
	s := newSession(t)
	if err := s.Load(context.Background(), exrFile(t, "good.exr")); err != nil {
		t.Fatal(err)
	}
	good := nextEvent(t, s).Record
	if good == nil {
		t.Fatal("first load failed")
	}

	s.Load(context.Background(), filepath.Join(t.TempDir(), "missing.exr"))
	e := nextEvent(t, s)
	var nf *hdrerr.NotFoundError
	if !errors.As(e.Err, &nf) || e.Record != nil {
		t.Fatalf("missing file event: %+v", e)
	}

	s.Load(context.Background(), fixtures.WriteFile(t, "bad.exr", []byte("v/1\x01 not really")))
	e = nextEvent(t, s)
	var de *hdrerr.DecodeError
	if !errors.As(e.Err, &de) {
		t.Fatalf("corrupt file event: %+v", e)
	}

	if s.Record() != good {
		t.Errorf("failed loads replaced the current record")
	}
}

func TestNewerLoadWins(t *testing.T) {
	s := newSession(t)

	big := fixtures.WritePNG(t, "big.png", image.NewRGBA(image.Rect(0, 0, 1500, 1000)))
	small := exrFile(t, "small.exr")

	s.Load(context.Background(), big)
	s.Load(context.Background(), small)

	// The first load is either cancelled or discarded; only the second reports
	e := nextEvent(t, s)
	if e.Path != small || e.Err != nil {
		t.Fatalf("event %+v, want success for %s", e, small)
	}
	select {
	case extra := <-s.Events():
		t.Errorf("superseded load reported: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	if s.Record().Path != small {
		t.Errorf("current record is %s", s.Record().Path)
	}
}

func TestClose(t *testing.T) {
	s := newSession(t)
	s.Close()
	s.Close()
	if err := s.Load(context.Background(), "x.exr"); !errors.Is(err, ErrClosed) {
		t.Errorf("Load after Close: %v", err)
	}
}
