// Package augment implements the geometric augmentations applied to training
// chips: random crops, random affine warps, flips and letterbox resizing.
// Every operation transforms the image and its boxes together so that labels
// stay aligned with pixels.
package augment

import (
	"errors"
	"fmt"
	"image"
	"math/rand"

	"chipprep/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrSourceTooSmall is returned when the crop window does not fit inside the
// source image.
var ErrSourceTooSmall = errors.New("source image smaller than crop window")

// SampleOffset picks the top-left corner of a size x size window uniformly
// inside a w x h image.
func SampleOffset(rng *rand.Rand, w, h, size int) (padX, padY int, err error) {
	if w < size || h < size {
		return 0, 0, fmt.Errorf("%w: %dx%d < %d", ErrSourceTooSmall, w, h, size)
	}
	padX = int(rng.Float64() * float64(w-size))
	padY = int(rng.Float64() * float64(h-size))
	return padX, padY, nil
}

// CropBoxes moves boxes into the frame of a window at (padX, padY), clamps
// them to [0, size] and drops those whose width or height is not greater
// than minSize.
func CropBoxes(boxes []geometry.Box, padX, padY, size int, minSize float64) []geometry.Box {
	moved := make([]geometry.Box, len(boxes))
	s := float64(size)
	for i, b := range boxes {
		moved[i] = b.Translate(-float64(padX), -float64(padY)).Clamp(s, s)
	}
	return geometry.FilterLarger(moved, minSize)
}

// CropAt cuts the window at (padX, padY) out of img. The returned Mat owns
// its pixels and must be closed by the caller.
func CropAt(img gocv.Mat, padX, padY, size int, boxes []geometry.Box, minSize float64) (gocv.Mat, []geometry.Box, error) {
	if padX < 0 || padY < 0 || padX+size > img.Cols() || padY+size > img.Rows() {
		return gocv.NewMat(), nil, fmt.Errorf("%w: window (%d,%d)+%d in %dx%d",
			ErrSourceTooSmall, padX, padY, size, img.Cols(), img.Rows())
	}

	region := img.Region(image.Rect(padX, padY, padX+size, padY+size))
	defer region.Close()

	return region.Clone(), CropBoxes(boxes, padX, padY, size, minSize), nil
}

// SampleCrop cuts a random size x size window out of img.
func SampleCrop(rng *rand.Rand, img gocv.Mat, size int, boxes []geometry.Box, minSize float64) (gocv.Mat, []geometry.Box, error) {
	padX, padY, err := SampleOffset(rng, img.Cols(), img.Rows(), size)
	if err != nil {
		return gocv.NewMat(), nil, err
	}
	return CropAt(img, padX, padY, size, boxes, minSize)
}
