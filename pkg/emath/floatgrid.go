package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg"
)

// A FloatGrid is a plane of float64s, e.g. the log luminance of an image.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

// DownSample halves each dimension, averaging 2x2 blocks. A trailing odd
// row or column is dropped.
func (g1 *FloatGrid)DownSample() FloatGrid {
	width := g1.Dx() / 2
	height := g1.Dy() / 2
	g2 := NewFloatGrid(width, height)

	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			p := g1.Get(2*x,   2*y)
			p += g1.Get(2*x+1, 2*y)
			p += g1.Get(2*x,   2*y+1)
			p += g1.Get(2*x+1, 2*y+1)
			g2.Set(x, y, p/4.0)
		}
	}

	return g2
}

// Range returns the smallest and largest finite values in the grid.
func (fg *FloatGrid)Range() (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range fg.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v > max { max = v }
		if v < min { min = v }
	}
	if min > max {
		return 0, 0
	}
	return min, max
}

// RangeAtPercentile is Range with outliers trimmed: it returns the values
// at the minPrct and maxPrct positions of the sorted finite values (0.01
// and 0.99 ignore the extreme 1% at each end).
func (fg *FloatGrid)RangeAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vals := make([]float64, 0, len(fg.values))
	for _, v := range fg.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, 0
	}

	sort.Float64s(vals)

	iMin := int(minPrct * float64(len(vals)))
	iMax := int(maxPrct * float64(len(vals)))
	if iMin < 0          { iMin = 0 }
	if iMin >= len(vals) { iMin = len(vals)-1 }
	if iMax < iMin       { iMax = iMin }
	if iMax >= len(vals) { iMax = len(vals)-1 }

	return vals[iMin], vals[iMax]
}

// ToImage renders the grid as grayscale, stretched over the range of values
// (1% trimmed at each end) and gamma expanded to look normal for human
// vision. Non-finite cells come out black.
func (fg *FloatGrid)ToImage() *image.Gray16 {
	min, max := fg.RangeAtPercentile(0.01, 0.99)
	span := max - min

	img := image.NewGray16(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for y:=0; y<fg.Dy(); y++ {
		for x:=0; x<fg.Dx(); x++ {
			v := fg.Get(x,y)
			gray := 0.0
			if span > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
				gray = GammaExpand_F64(Clamp((v - min) / span, 0, 1))
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535.0)})
		}
	}
	return img
}

// ToImg saves ToImage as a PNG, with a caption in the top left.
func (fg *FloatGrid)ToImg(title, filename string) error {
	if fg.Dx() == 0 || fg.Dy() == 0 {
		return fmt.Errorf("ToImg '%s': empty grid", filename)
	}

	dc := gg.NewContextForImage(fg.ToImage())
	if title != "" {
		dc.SetRGB(1,0.2,0.2)
		dc.DrawString(title, 10, 20)
	}
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("ToImg '%s': %v", filename, err)
	}
	return nil
}
