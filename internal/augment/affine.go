package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"chipprep/pkg/geometry"

	"gocv.io/x/gocv"
)

// AxisMode selects how image dimensions pair with the x and y axes.
type AxisMode int

const (
	// AxesPerAxis pairs x with width and y with height.
	AxesPerAxis AxisMode = iota
	// AxesLegacy matches historical training runs, which read the image shape
	// as (height, width) but used it as (x, y): the rotation centre is
	// (h/2, w/2), x translation scales with height, y with width, and
	// warped boxes are clamped to height on both axes. Identical to
	// AxesPerAxis for square chips.
	AxesLegacy
)

// AffineRanges holds the sampling ranges for RandomAffine.
type AffineRanges struct {
	Degrees   [2]float64 // rotation jitter, degrees
	Translate [2]float64 // max shift as a fraction of the image side
	Scale     [2]float64
	Shear     [2]float64 // degrees
	// One of these is added to the sampled rotation, so overhead imagery is
	// seen in all orientations.
	RightAngles []float64
}

// DefaultAffineRanges returns the generic warp ranges.
func DefaultAffineRanges() AffineRanges {
	return AffineRanges{
		Degrees:     [2]float64{-10, 10},
		Translate:   [2]float64{0.1, 0.1},
		Scale:       [2]float64{0.9, 1.1},
		Shear:       [2]float64{-2, 2},
		RightAngles: []float64{-180, -90, 0, 90},
	}
}

// IdentityRanges returns ranges that always sample the identity transform.
func IdentityRanges() AffineRanges {
	return AffineRanges{
		Scale:       [2]float64{1, 1},
		RightAngles: []float64{0},
	}
}

// AffineParams is one sampled warp. Translation is in pixels.
type AffineParams struct {
	Angle      float64
	Scale      float64
	TranslateX float64
	TranslateY float64
	ShearX     float64
	ShearY     float64
}

func uniform(rng *rand.Rand, r [2]float64) float64 {
	return rng.Float64()*(r[1]-r[0]) + r[0]
}

// SampleAffine draws warp parameters for a w x h image. Draw order is fixed
// (angle, right angle, scale, x shift, y shift, x shear, y shear) so a seeded
// rng replays the same warps.
func SampleAffine(rng *rand.Rand, r AffineRanges, w, h int, axes AxisMode) AffineParams {
	var p AffineParams
	p.Angle = uniform(rng, r.Degrees)
	if len(r.RightAngles) > 0 {
		p.Angle += r.RightAngles[rng.Intn(len(r.RightAngles))]
	}
	p.Scale = uniform(rng, r.Scale)

	spanX, spanY := float64(w), float64(h)
	if axes == AxesLegacy {
		spanX, spanY = float64(h), float64(w)
	}
	p.TranslateX = (rng.Float64()*2 - 1) * r.Translate[0] * spanX
	p.TranslateY = (rng.Float64()*2 - 1) * r.Translate[1] * spanY

	p.ShearX = uniform(rng, r.Shear)
	p.ShearY = uniform(rng, r.Shear)
	return p
}

// Matrix composes the warp as R·T·S: shear first, then translation, then
// rotation and scale about the image centre.
func (p AffineParams) Matrix(w, h int, axes AxisMode) geometry.Homography {
	cx, cy := float64(w)/2, float64(h)/2
	if axes == AxesLegacy {
		cx, cy = cy, cx
	}
	r := geometry.RotationAbout(p.Angle, p.Scale, cx, cy)
	t := geometry.Translation(p.TranslateX, p.TranslateY)
	s := geometry.Shear(math.Tan(p.ShearX*math.Pi/180), math.Tan(p.ShearY*math.Pi/180))
	return r.Compose(t, s)
}

// ClampBounds returns the (x, y) limits warped boxes are clamped to.
func ClampBounds(w, h int, axes AxisMode) (float64, float64) {
	if axes == AxesLegacy {
		return float64(h), float64(h)
	}
	return float64(w), float64(h)
}

// WarpImage applies m to img with a perspective warp. The output has the
// input's size, uses bilinear interpolation and is black outside the source.
// The caller must close the returned Mat.
func WarpImage(img gocv.Mat, m geometry.Homography) gocv.Mat {
	transformMat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer transformMat.Close()
	v := m.Values()
	for i, x := range v {
		transformMat.SetDoubleAt(i/3, i%3, x)
	}

	dst := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(img, &dst, transformMat, image.Pt(img.Cols(), img.Rows()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{R: 0, G: 0, B: 0, A: 0})
	return dst
}

// WarpBoxes maps each box's corners through m and replaces the box with the
// axis-aligned bounds of the warped quadrilateral. Results are clamped to
// [0, clampX] x [0, clampY] and boxes not larger than minSize on both sides
// are dropped. A non-positive clamp bound leaves that axis unclamped.
func WarpBoxes(boxes []geometry.Box, m geometry.Homography, clampX, clampY, minSize float64) []geometry.Box {
	if len(boxes) == 0 {
		return []geometry.Box{}
	}

	corners := make([]geometry.Point2D, 0, 4*len(boxes))
	for _, b := range boxes {
		c := b.Corners()
		corners = append(corners, c[:]...)
	}
	warped := m.Transform(corners)

	out := make([]geometry.Box, len(boxes))
	for i, b := range boxes {
		nb := geometry.BoundingBox(warped[i*4 : i*4+4])
		nb.Class = b.Class
		if clampX > 0 {
			nb.X1 = math.Min(math.Max(nb.X1, 0), clampX)
			nb.X2 = math.Min(math.Max(nb.X2, 0), clampX)
		}
		if clampY > 0 {
			nb.Y1 = math.Min(math.Max(nb.Y1, 0), clampY)
			nb.Y2 = math.Min(math.Max(nb.Y2, 0), clampY)
		}
		out[i] = nb
	}
	return geometry.FilterLarger(out, minSize)
}

// Warp applies m to an image and its boxes.
func Warp(img gocv.Mat, boxes []geometry.Box, m geometry.Homography, axes AxisMode, minSize float64) (gocv.Mat, []geometry.Box) {
	cx, cy := ClampBounds(img.Cols(), img.Rows(), axes)
	return WarpImage(img, m), WarpBoxes(boxes, m, cx, cy, minSize)
}

// RandomAffine samples a warp from r and applies it to img and boxes. An
// empty box list still warps the image.
func RandomAffine(rng *rand.Rand, img gocv.Mat, boxes []geometry.Box, r AffineRanges, axes AxisMode, minSize float64) (gocv.Mat, []geometry.Box, AffineParams) {
	w, h := img.Cols(), img.Rows()
	p := SampleAffine(rng, r, w, h, axes)
	out, warped := Warp(img, boxes, p.Matrix(w, h, axes), axes, minSize)
	return out, warped, p
}
