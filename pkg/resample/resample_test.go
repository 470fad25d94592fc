package resample

import(
	"errors"
	"math"
	"testing"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/pixbuf"
)

func TestDimensions(t *testing.T) {
	tests := []struct {
		w, h, target  int
		wantW, wantH  int
	}{
		{64, 32, 1024, 1024, 512},
		{4000, 3000, 1024, 1024, 768},
		{1024, 700, 1024, 1024, 700},
		{3, 2, 2, 2, 1},     // 1.33 rounds to 1
		{1000, 1, 10, 10, 1}, // never below 1
		{100, 33, 50, 50, 17}, // 16.5 rounds away from zero
	}
	for _, tc := range tests {
		w, h := Dimensions(tc.w, tc.h, tc.target)
		if w != tc.wantW || h != tc.wantH {
			t.Errorf("Dimensions(%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.target, w, h, tc.wantW, tc.wantH)
		}
	}
}

func TestResizeInvalid(t *testing.T) {
	buf := pixbuf.New(4, 4, 3)
	for _, w := range []int{0, -5} {
		_, err := Resize(buf, w)
		var ipe *hdrerr.InvalidParameterError
		if !errors.As(err, &ipe) {
			t.Errorf("width %d: expected InvalidParameterError, got %v", w, err)
		}
	}
}

func TestResizeConstant(t *testing.T) {
	for _, c := range []int{3, 4} {
		buf := pixbuf.New(37, 23, c)
		for i := range buf.Pix {
			buf.Pix[i] = 12.5
		}

		for _, target := range []int{1, 10, 37, 100} {
			out, err := Resize(buf, target)
			if err != nil {
				t.Fatal(err)
			}
			if out.Channels != c {
				t.Fatalf("channels %d -> %d", c, out.Channels)
			}
			wantW, wantH := Dimensions(37, 23, target)
			if out.Width != wantW || out.Height != wantH || len(out.Pix) != wantW*wantH*c {
				t.Fatalf("target %d: got %s", target, out)
			}
			for i, v := range out.Pix {
				if math.Abs(float64(v)-12.5) > 1e-4 {
					t.Fatalf("target %d: sample %d = %v, want 12.5", target, i, v)
				}
			}
		}
	}
}

func TestResizeDownAverages(t *testing.T) {
	// A 4x2 checkerboard of 0 and 1000 halves to a 2x1 of 500s
	buf := pixbuf.New(4, 2, 3)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			if (x+y)%2 == 0 {
				i := buf.PixOffset(x, y)
				buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = 1000, 1000, 1000
			}
		}
	}

	out, err := Resize(buf, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 2 || out.Height != 1 {
		t.Fatalf("got %s", out)
	}
	for i, v := range out.Pix {
		if math.Abs(float64(v)-500) > 1e-3 {
			t.Errorf("sample %d = %v, want 500 (HDR values must not clip)", i, v)
		}
	}
}

func TestResizeUpInterpolates(t *testing.T) {
	buf := pixbuf.New(2, 1, 3)
	copy(buf.Pix, []float32{0, 0, 0, 8, 8, 8})

	out, err := Resize(buf, 8)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 8 || out.Height != 4 {
		t.Fatalf("got %s", out)
	}

	row := make([]float32, 8)
	for x := range row {
		row[x] = out.Pix[out.PixOffset(x, 0)]
	}
	// Edges clamp, the middle ramps monotonically
	if row[0] != 0 || row[7] != 8 {
		t.Errorf("edges = %v, %v", row[0], row[7])
	}
	for x := 1; x < 8; x++ {
		if row[x] < row[x-1] {
			t.Errorf("not monotonic: %v", row)
			break
		}
	}
	// Every row is the same, there was only one source row
	for y := 1; y < 4; y++ {
		if out.Pix[out.PixOffset(5, y)] != row[5] {
			t.Errorf("row %d differs", y)
		}
	}
}

func TestResizeDeterministicAndPure(t *testing.T) {
	buf := pixbuf.New(50, 30, 4)
	for i := range buf.Pix {
		buf.Pix[i] = float32(i%97) * 3.7
	}
	orig := buf.Clone()

	a, _ := Resize(buf, 17)
	b, _ := Resize(buf, 17)
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("sample %d differs between runs", i)
		}
	}
	for i := range buf.Pix {
		if buf.Pix[i] != orig.Pix[i] {
			t.Fatalf("input modified at %d", i)
		}
	}

	same, _ := Resize(buf, 50)
	if &same.Pix[0] == &buf.Pix[0] {
		t.Errorf("same-size resize should return a copy")
	}
}
