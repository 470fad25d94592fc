package decode

import(
	"bytes"
	"errors"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// ExifSummary is the handful of EXIF fields worth showing next to an LDR
// photo. Any of them may be missing.
type ExifSummary struct {
	Model         string
	ISO           int
	FNumber       float64   // e.g. 5.6
	ExposureTime  [2]int64  // numerator, denominator; 1/500 is {1, 500}
}

func (e ExifSummary)String() string {
	s := e.Model
	if e.FNumber > 0 {
		s += fmt.Sprintf(", f/%.1f", e.FNumber)
	}
	if e.ExposureTime[1] == 1 {
		s += fmt.Sprintf(", %ds", e.ExposureTime[0])
	} else if e.ExposureTime[1] > 0 {
		s += fmt.Sprintf(", %d/%ds", e.ExposureTime[0], e.ExposureTime[1])
	}
	if e.ISO > 0 {
		s += fmt.Sprintf(", ISO%d", e.ISO)
	}
	return s
}

// readExif is best effort: plenty of perfectly good images have no EXIF,
// so failures just mean no summary. The error says why, for logging.
func readExif(data []byte) (*ExifSummary, error) {
	ex, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	sum := ExifSummary{}
	found := false

	if tag, err := ex.Get(exif.Model); err == nil {
		if val, err := tag.StringVal(); err == nil {
			sum.Model = val
			found = true
		}
	}

	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		if val, err := tag.Int64(0); err == nil {
			sum.ISO = int(val)
			found = true
		}
	}

	if tag, err := ex.Get(exif.FNumber); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			sum.FNumber = float64(num) / float64(denom)
			found = true
		}
	}

	if tag, err := ex.Get(exif.ExposureTime); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			sum.ExposureTime = [2]int64{num, denom}
			found = true
		}
	}

	if !found {
		return nil, errors.New("exif has no model, ISO, aperture or shutter speed")
	}
	return &sum, nil
}
