package chip

import (
	"fmt"

	"chipprep/pkg/colorutil"

	"gocv.io/x/gocv"
)

// Stats accumulates per-channel pixel statistics over many chips in RGB and
// OpenCV HSV units.
type Stats struct {
	RGB   colorutil.Accumulator
	HSV   colorutil.Accumulator
	Chips int
}

// Add folds the pixels of a BGR chip into the statistics.
func (s *Stats) Add(img gocv.Mat) error {
	if img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("unsupported image type %v, want 8-bit 3-channel", img.Type())
	}
	data := img.ToBytes()
	n := len(data) / 3

	var rgb, hsv [3][]float64
	for c := range rgb {
		rgb[c] = make([]float64, n)
		hsv[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		b, g, r := float64(data[i*3]), float64(data[i*3+1]), float64(data[i*3+2])
		rgb[0][i], rgb[1][i], rgb[2][i] = r, g, b
		hsv[0][i], hsv[1][i], hsv[2][i] = colorutil.RGBToHSV(r, g, b)
	}
	for c := 0; c < 3; c++ {
		s.RGB.Add(c, rgb[c])
		s.HSV.Add(c, hsv[c])
	}
	s.Chips++
	return nil
}
