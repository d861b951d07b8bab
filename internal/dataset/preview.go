package dataset

import (
	"image"
	"image/color"
	"strconv"

	"chipprep/internal/classmap"

	"gocv.io/x/gocv"
)

// Draw outlines every box on the sample image and labels it with the xView
// code it was annotated with.
func (s *Sample) Draw(c color.RGBA) {
	for _, b := range s.Boxes {
		r := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
		gocv.Rectangle(&s.Image, r, c, 1)

		label := strconv.Itoa(b.Class)
		if code, ok := classmap.Inverse(b.Class); ok {
			label = strconv.Itoa(code)
		}
		gocv.PutText(&s.Image, label, image.Pt(r.Min.X, max(r.Min.Y-2, 8)),
			gocv.FontHersheyPlain, 0.8, c, 1)
	}
}
