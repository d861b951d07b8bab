// Package geometry provides basic geometric types used throughout the pipeline.
package geometry

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box in image-pixel coordinates with the
// class code it was annotated with. Depending on the pipeline stage Class is
// either a sparse annotation code or a dense training index.
type Box struct {
	Class int     `json:"class"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
}

// NewBox creates a new Box.
func NewBox(class int, x1, y1, x2, y2 float64) Box {
	return Box{Class: class, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Width returns x2 - x1.
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns y2 - y1.
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Normalized returns the box with x1<=x2 and y1<=y2.
func (b Box) Normalized() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Translate returns the box shifted by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	b.X1 += dx
	b.X2 += dx
	b.Y1 += dy
	b.Y2 += dy
	return b
}

// Clamp limits x coordinates to [0, maxX] and y coordinates to [0, maxY].
func (b Box) Clamp(maxX, maxY float64) Box {
	b.X1 = clamp(b.X1, 0, maxX)
	b.X2 = clamp(b.X2, 0, maxX)
	b.Y1 = clamp(b.Y1, 0, maxY)
	b.Y2 = clamp(b.Y2, 0, maxY)
	return b
}

// Larger reports whether both sides are strictly greater than minSize.
func (b Box) Larger(minSize float64) bool {
	return b.Width() > minSize && b.Height() > minSize
}

// Corners returns the four corners in the order x1y1, x2y2, x1y2, x2y1.
func (b Box) Corners() [4]Point2D {
	return [4]Point2D{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y2},
		{X: b.X1, Y: b.Y2},
		{X: b.X2, Y: b.Y1},
	}
}

// CloneBoxes returns an independent copy of boxes. A nil input yields an
// empty, non-nil slice.
func CloneBoxes(boxes []Box) []Box {
	out := make([]Box, len(boxes))
	copy(out, boxes)
	return out
}

// FilterLarger returns the boxes whose width and height exceed minSize in a
// new, non-nil slice. The input is left untouched.
func FilterLarger(boxes []Box, minSize float64) []Box {
	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Larger(minSize) {
			out = append(out, b)
		}
	}
	return out
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
// The returned box carries class 0.
func BoundingBox(points []Point2D) Box {
	if len(points) == 0 {
		return Box{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return Box{X1: minX, Y1: minY, X2: maxX, Y2: maxY}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
