package geometry

import "math"

// Box is an axis-aligned rectangle given by its top-left and bottom-right corners.
type Box struct {
	X1 float64 `json:"x1"` // Left
	Y1 float64 `json:"y1"` // Top
	X2 float64 `json:"x2"` // Right
	Y2 float64 `json:"y2"` // Bottom
}

// BoxFromCenter builds a corner box from center, width and height.
func BoxFromCenter(cx, cy, w, h float64) Box {
	return Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
}

// Width returns the horizontal extent, zero for inverted boxes.
func (b Box) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent, zero for inverted boxes.
func (b Box) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns the box area.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Intersect returns the overlapping region (possibly empty).
func (b Box) Intersect(o Box) Box {
	return Box{
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
		X2: math.Min(b.X2, o.X2),
		Y2: math.Min(b.Y2, o.Y2),
	}
}

// IoU returns intersection-over-union of two boxes. Degenerate pairs yield 0.
func (b Box) IoU(o Box) float64 {
	inter := b.Intersect(o).Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
