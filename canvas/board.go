package canvas

import (
	"time"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"github.com/Tk21111/drawsync/middleware"
	"go.uber.org/zap"
)

const DefaultThrottle = 10 * time.Millisecond

// Transmitter hands a locally drawn segment to the network.
type Transmitter interface {
	Transmit(config.DrawEvent) error
}

type TransmitFunc func(config.DrawEvent) error

func (f TransmitFunc) Transmit(e config.DrawEvent) error {
	return f(e)
}

type point struct {
	x, y float64
}

// Board holds the local drawing state of one client. Pointer handlers,
// Apply and Resize must all be called from the same goroutine.
type Board struct {
	surface  Surface
	tx       Transmitter
	viewport Viewport
	log      *zap.Logger

	color   string
	drawing bool
	lastX   float64
	lastY   float64

	delay time.Duration
	clock func() time.Time
	move  func(point)
}

type BoardOption func(*Board)

func WithThrottleDelay(d time.Duration) BoardOption {
	return func(b *Board) {
		b.delay = d
	}
}

func WithBoardClock(now func() time.Time) BoardOption {
	return func(b *Board) {
		b.clock = now
	}
}

func WithLogger(l *zap.Logger) BoardOption {
	return func(b *Board) {
		b.log = l
	}
}

func NewBoard(surface Surface, tx Transmitter, vp Viewport, opts ...BoardOption) *Board {
	b := &Board{
		surface:  surface,
		tx:       tx,
		viewport: vp,
		log:      logx.L,
		color:    middleware.DefaultColor,
		delay:    DefaultThrottle,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.move = Throttle(b.onMove, b.delay, WithClock(b.clock))
	return b
}

func (b *Board) Color() string {
	return b.color
}

func (b *Board) SetColor(color string) {
	b.color = color
}

func (b *Board) Drawing() bool {
	return b.drawing
}

func (b *Board) Viewport() Viewport {
	return b.viewport
}

// Resize only affects strokes drawn afterwards; already painted lines are
// not replayed.
func (b *Board) Resize(vp Viewport) {
	b.viewport = vp
}

func (b *Board) PointerDown(x, y float64) {
	b.drawing = true
	b.lastX = x
	b.lastY = y
}

// PointerMove is rate limited. Dropped moves do not advance the start
// point, so the next accepted move still connects to the last sent one.
func (b *Board) PointerMove(x, y float64) {
	b.move(point{x, y})
}

// PointerUp bypasses the throttle so the endpoint is always transmitted.
func (b *Board) PointerUp(x, y float64) {
	if !b.drawing {
		return
	}
	b.drawing = false
	b.stroke(Segment{X0: b.lastX, Y0: b.lastY, X1: x, Y1: y})
}

func (b *Board) PointerLeave(x, y float64) {
	b.PointerUp(x, y)
}

func (b *Board) onMove(p point) {
	if !b.drawing {
		return
	}
	b.stroke(Segment{X0: b.lastX, Y0: b.lastY, X1: p.x, Y1: p.y})
	b.lastX = p.x
	b.lastY = p.y
}

func (b *Board) stroke(seg Segment) {
	b.RenderLocal(seg, b.color)
	if err := b.Transmit(seg, b.color); err != nil {
		b.log.Debug("transmit_failed", zap.Error(err))
	}
}

// RenderLocal paints a pixel segment without touching the network.
func (b *Board) RenderLocal(seg Segment, color string) {
	b.surface.DrawLine(seg.X0, seg.Y0, seg.X1, seg.Y1, color)
}

// Transmit converts a pixel segment to fractional form and sends it.
func (b *Board) Transmit(seg Segment, color string) error {
	if !b.viewport.Valid() {
		return ErrEmptyViewport
	}

	f := Clamp(ToFractional(seg, b.viewport))
	return b.tx.Transmit(config.Drawing(f.X0, f.Y0, f.X1, f.Y1, color))
}

// Apply renders an event received from a peer. Nothing is transmitted and
// kinds other than drawing are ignored.
func (b *Board) Apply(e config.DrawEvent) {
	if e.Kind != config.KindDrawing || !b.viewport.Valid() {
		return
	}

	p := ToPixels(Segment{X0: e.X0, Y0: e.Y0, X1: e.X1, Y1: e.Y1}, b.viewport)
	b.RenderLocal(p, e.Color)
}
