package augment

import (
	"image"
	"image/color"
	"math"

	"chipprep/pkg/geometry"

	"gocv.io/x/gocv"
)

// LetterboxLayout describes how a w x h image fits into a size x size square.
type LetterboxLayout struct {
	Ratio       float64
	Width       int // resized width
	Height      int // resized height
	Left, Right int
	Top, Bottom int
}

// NewLetterboxLayout scales the longer side to size and splits the padding of
// the shorter side evenly, the odd pixel going to the bottom/right. Resized
// sides round half to even.
func NewLetterboxLayout(w, h, size int) LetterboxLayout {
	ratio := float64(size) / float64(max(w, h))
	l := LetterboxLayout{
		Ratio:  ratio,
		Width:  int(math.RoundToEven(float64(w) * ratio)),
		Height: int(math.RoundToEven(float64(h) * ratio)),
	}
	dw := size - l.Width
	dh := size - l.Height
	l.Left, l.Right = dw/2, dw-dw/2
	l.Top, l.Bottom = dh/2, dh-dh/2
	return l
}

// Boxes maps source boxes into the letterboxed frame.
func (l LetterboxLayout) Boxes(boxes []geometry.Box) []geometry.Box {
	out := make([]geometry.Box, len(boxes))
	for i, b := range boxes {
		out[i] = geometry.Box{
			Class: b.Class,
			X1:    b.X1*l.Ratio + float64(l.Left),
			Y1:    b.Y1*l.Ratio + float64(l.Top),
			X2:    b.X2*l.Ratio + float64(l.Left),
			Y2:    b.Y2*l.Ratio + float64(l.Top),
		}
	}
	return out
}

// Letterbox resizes img into a size x size square with black padding, keeping
// its aspect ratio, and maps boxes accordingly. The caller must close the
// returned Mat.
func Letterbox(img gocv.Mat, size int, boxes []geometry.Box) (gocv.Mat, []geometry.Box) {
	l := NewLetterboxLayout(img.Cols(), img.Rows(), size)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(l.Width, l.Height), 0, 0, gocv.InterpolationArea)

	dst := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &dst, l.Top, l.Bottom, l.Left, l.Right, gocv.BorderConstant, color.RGBA{})
	return dst, l.Boxes(boxes)
}
