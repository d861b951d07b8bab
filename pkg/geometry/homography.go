package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective transform acting on column vectors
// [x y 1]^T.
type Homography struct {
	m *mat.Dense
}

// Identity returns the identity transform.
func Identity() Homography {
	return NewHomography([9]float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// NewHomography creates a transform from row-major values.
func NewHomography(v [9]float64) Homography {
	data := make([]float64, 9)
	copy(data, v[:])
	return Homography{m: mat.NewDense(3, 3, data)}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) Homography {
	return NewHomography([9]float64{
		1, 0, tx,
		0, 1, ty,
		0, 0, 1,
	})
}

// Shear returns a shear transform with x and y shear coefficients.
func Shear(sx, sy float64) Homography {
	return NewHomography([9]float64{
		1, sx, 0,
		sy, 1, 0,
		0, 0, 1,
	})
}

// RotationAbout returns a rotation+isotropic scale about (cx, cy), using
// OpenCV's getRotationMatrix2D convention: positive degrees rotate
// counter-clockwise in image coordinates (y pointing down).
func RotationAbout(degrees, scale, cx, cy float64) Homography {
	rad := degrees * math.Pi / 180
	alpha := scale * math.Cos(rad)
	beta := scale * math.Sin(rad)
	return NewHomography([9]float64{
		alpha, beta, (1-alpha)*cx - beta*cy,
		-beta, alpha, beta*cx + (1-alpha)*cy,
		0, 0, 1,
	})
}

// At returns the element at row i, column j.
func (h Homography) At(i, j int) float64 {
	return h.m.At(i, j)
}

// Values returns the matrix in row-major order.
func (h Homography) Values() [9]float64 {
	var v [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v[i*3+j] = h.m.At(i, j)
		}
	}
	return v
}

// Compose returns h · others[0] · others[1] · ...
// The rightmost transform is applied to points first.
func (h Homography) Compose(others ...Homography) Homography {
	result := mat.DenseCopyOf(h.m)
	for _, o := range others {
		var next mat.Dense
		next.Mul(result, o.m)
		result = &next
	}
	return Homography{m: result}
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.m); err != nil {
		return Homography{}, fmt.Errorf("singular transform: %w", err)
	}
	return Homography{m: &inv}, nil
}

// Apply maps a point through the transform, dividing by the homogeneous
// coordinate.
func (h Homography) Apply(p Point2D) Point2D {
	x := h.m.At(0, 0)*p.X + h.m.At(0, 1)*p.Y + h.m.At(0, 2)
	y := h.m.At(1, 0)*p.X + h.m.At(1, 1)*p.Y + h.m.At(1, 2)
	w := h.m.At(2, 0)*p.X + h.m.At(2, 1)*p.Y + h.m.At(2, 2)
	if w != 0 && w != 1 {
		x /= w
		y /= w
	}
	return Point2D{X: x, Y: y}
}

// Transform maps all points through the transform in one matrix product.
func (h Homography) Transform(points []Point2D) []Point2D {
	if len(points) == 0 {
		return nil
	}
	n := len(points)
	xy := mat.NewDense(3, n, nil)
	for i, p := range points {
		xy.Set(0, i, p.X)
		xy.Set(1, i, p.Y)
		xy.Set(2, i, 1)
	}

	var out mat.Dense
	out.Mul(h.m, xy)

	result := make([]Point2D, n)
	for i := range result {
		x, y, w := out.At(0, i), out.At(1, i), out.At(2, i)
		if w != 0 && w != 1 {
			x /= w
			y /= w
		}
		result[i] = Point2D{X: x, Y: y}
	}
	return result
}

// TransformBox maps the four corners of b and returns their axis-aligned
// bounding box, keeping b's class.
func (h Homography) TransformBox(b Box) Box {
	c := b.Corners()
	out := BoundingBox(h.Transform(c[:]))
	out.Class = b.Class
	return out
}

// IsIdentity reports whether every element is within tol of the identity.
func (h Homography) IsIdentity(tol float64) bool {
	return mat.EqualApprox(h.m, Identity().m, tol)
}
