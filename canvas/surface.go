package canvas

// LineWidth is the stroke width in pixels every surface paints with.
const LineWidth = 2

// Surface paints one flat-colored line segment in pixel coordinates.
type Surface interface {
	DrawLine(x0, y0, x1, y1 float64, color string)
}

type Line struct {
	Segment
	Color string
}

// Recorder is a headless Surface that keeps every line it was asked to draw.
type Recorder struct {
	Lines []Line
}

func (r *Recorder) DrawLine(x0, y0, x1, y1 float64, color string) {
	r.Lines = append(r.Lines, Line{
		Segment: Segment{X0: x0, Y0: y0, X1: x1, Y1: y1},
		Color:   color,
	})
}

// Clear drops recorded lines, like a browser canvas being resized.
func (r *Recorder) Clear() {
	r.Lines = r.Lines[:0]
}
