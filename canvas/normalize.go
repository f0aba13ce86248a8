package canvas

import "errors"

var ErrEmptyViewport = errors.New("viewport has no area")

// Viewport is the drawable area of one client, in pixels.
type Viewport struct {
	W float64
	H float64
}

func (v Viewport) Valid() bool {
	return v.W > 0 && v.H > 0
}

// Segment is a line from (X0,Y0) to (X1,Y1). The same type carries pixel
// and fractional coordinates; which one is meant depends on the caller.
type Segment struct {
	X0, Y0 float64
	X1, Y1 float64
}

// ToFractional divides pixel coordinates by the viewport size.
func ToFractional(s Segment, v Viewport) Segment {
	return Segment{
		X0: s.X0 / v.W,
		Y0: s.Y0 / v.H,
		X1: s.X1 / v.W,
		Y1: s.Y1 / v.H,
	}
}

// ToPixels scales fractional coordinates back to the local viewport.
func ToPixels(s Segment, v Viewport) Segment {
	return Segment{
		X0: s.X0 * v.W,
		Y0: s.Y0 * v.H,
		X1: s.X1 * v.W,
		Y1: s.Y1 * v.H,
	}
}

// Clamp pins fractional coordinates into [0,1].
func Clamp(s Segment) Segment {
	return Segment{
		X0: clamp01(s.X0),
		Y0: clamp01(s.Y0),
		X1: clamp01(s.X1),
		Y1: clamp01(s.Y1),
	}
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}
