package augment

import (
	"chipprep/pkg/geometry"

	"gocv.io/x/gocv"
)

// FlipBoxesLR mirrors boxes about the vertical centre line of a w-wide image.
func FlipBoxesLR(boxes []geometry.Box, w int) []geometry.Box {
	out := make([]geometry.Box, len(boxes))
	fw := float64(w)
	for i, b := range boxes {
		b.X1, b.X2 = fw-b.X2, fw-b.X1
		out[i] = b
	}
	return out
}

// FlipBoxesUD mirrors boxes about the horizontal centre line of an h-tall image.
func FlipBoxesUD(boxes []geometry.Box, h int) []geometry.Box {
	out := make([]geometry.Box, len(boxes))
	fh := float64(h)
	for i, b := range boxes {
		b.Y1, b.Y2 = fh-b.Y2, fh-b.Y1
		out[i] = b
	}
	return out
}

// FlipLR flips an image and its boxes horizontally.
func FlipLR(img gocv.Mat, boxes []geometry.Box) (gocv.Mat, []geometry.Box) {
	dst := gocv.NewMat()
	gocv.Flip(img, &dst, 1)
	return dst, FlipBoxesLR(boxes, img.Cols())
}

// FlipUD flips an image and its boxes vertically.
func FlipUD(img gocv.Mat, boxes []geometry.Box) (gocv.Mat, []geometry.Box) {
	dst := gocv.NewMat()
	gocv.Flip(img, &dst, 0)
	return dst, FlipBoxesUD(boxes, img.Rows())
}
