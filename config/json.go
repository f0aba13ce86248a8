package config

// Kind discriminates the wire messages exchanged over a connection.
type Kind string

const (
	KindDrawing Kind = "drawing"

	// reserved, not produced yet
	KindClear  Kind = "clear"
	KindCursor Kind = "cursor"
)

// Known reports whether k is a kind this build understands.
func (k Kind) Known() bool {
	return k == KindDrawing
}

// DrawEvent is one line segment plus its color. Coordinates are fractions
// of the sender's viewport at send time, origin top-left.
type DrawEvent struct {
	Kind  Kind    `json:"type"`
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Color string  `json:"color"`
}

func Drawing(x0, y0, x1, y1 float64, color string) DrawEvent {
	return DrawEvent{
		Kind:  KindDrawing,
		X0:    x0,
		Y0:    y0,
		X1:    x1,
		Y1:    y1,
		Color: color,
	}
}
