// Package geometry maps points between a source frame and the square model canvas
// the detector sees. Everything here is pure math so it can be tested without OpenCV.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidFrame is returned when a source frame has a zero or negative dimension.
	ErrInvalidFrame = errors.New("geometry: invalid frame size")

	// ErrInvalidTarget is returned when the model canvas has a zero or negative dimension.
	ErrInvalidTarget = errors.New("geometry: invalid target size")
)

// Size is a width/height pair in pixels.
type Size struct {
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// Sz is shorthand for Size{W: w, H: h}.
func Sz(w, h int) Size {
	return Size{W: w, H: h}
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return s.W <= 0 || s.H <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.W, s.H)
}

// Point is a position in pixel coordinates.
type Point struct {
	X, Y float64
}

// Letterbox describes how a source frame was fitted into the model canvas:
// uniformly scaled, then padded evenly on both axes.
type Letterbox struct {
	Source  Size
	Target  Size
	Resized Size // Source after scaling, before padding

	Scale float64
	PadX  float64 // Half of the horizontal slack, used by Invert
	PadY  float64 // Half of the vertical slack, used by Invert

	// Integer borders actually added around the resized image.
	// Left+Resized.W+Right == Target.W and Top+Resized.H+Bottom == Target.H.
	Top, Bottom, Left, Right int
}

// Forward computes the letterbox that fits src into target while preserving aspect ratio.
func Forward(src, target Size) (Letterbox, error) {
	if src.Empty() {
		return Letterbox{}, fmt.Errorf("%w: %s", ErrInvalidFrame, src)
	}
	if target.Empty() {
		return Letterbox{}, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}

	scale := math.Min(float64(target.W)/float64(src.W), float64(target.H)/float64(src.H))
	resized := Size{
		W: int(math.Round(float64(src.W) * scale)),
		H: int(math.Round(float64(src.H) * scale)),
	}

	padX := float64(target.W-resized.W) / 2
	padY := float64(target.H-resized.H) / 2

	// Slack is always a whole number of pixels, so pad is n or n+0.5. Nudging by 0.1
	// before rounding hands the odd pixel to the right/bottom edge and keeps the
	// borders summing to the full slack.
	return Letterbox{
		Source:  src,
		Target:  target,
		Resized: resized,
		Scale:   scale,
		PadX:    padX,
		PadY:    padY,
		Top:     int(math.Round(padY - 0.1)),
		Bottom:  int(math.Round(padY + 0.1)),
		Left:    int(math.Round(padX - 0.1)),
		Right:   int(math.Round(padX + 0.1)),
	}, nil
}

// Apply maps a source-frame point into canvas coordinates.
func (l Letterbox) Apply(p Point) Point {
	return Point{
		X: p.X*l.Scale + l.PadX,
		Y: p.Y*l.Scale + l.PadY,
	}
}

// Invert maps a canvas point back into source-frame coordinates.
// It undoes the scale and pad step exactly; resize interpolation loss is not modelled.
func (l Letterbox) Invert(p Point) Point {
	return Point{
		X: (p.X - l.PadX) / l.Scale,
		Y: (p.Y - l.PadY) / l.Scale,
	}
}

// InvertBox maps both corners of a canvas box back into source-frame coordinates.
func (l Letterbox) InvertBox(b Box) Box {
	p1 := l.Invert(Point{X: b.X1, Y: b.Y1})
	p2 := l.Invert(Point{X: b.X2, Y: b.Y2})
	return Box{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y}
}

// Identity returns a letterbox that leaves coordinates unchanged.
// Useful when the model input already matches the frame.
func Identity(s Size) Letterbox {
	return Letterbox{Source: s, Target: s, Resized: s, Scale: 1}
}
