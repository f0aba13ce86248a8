package ws

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/google/uuid"
)

// RandomStroke returns a connected polyline of segments in fractional
// coordinates. Each segment starts where the previous one ended.
func RandomStroke(rng *rand.Rand, color string, segments int) []config.DrawEvent {
	x, y := rng.Float64(), rng.Float64()
	out := make([]config.DrawEvent, 0, segments)

	for range segments {
		nx := clampUnit(x + (rng.Float64()-0.5)*0.1)
		ny := clampUnit(y + (rng.Float64()-0.5)*0.1)
		out = append(out, config.Drawing(x, y, nx, ny, color))
		x, y = nx, ny
	}
	return out
}

func clampUnit(f float64) float64 {
	return min(max(f, 0), 1)
}

// Burn pushes server-originated strokes to every connection, pausing gap
// between segments. It stops early when ctx is done.
func Burn(ctx context.Context, h *Hub, strokes, segments int, gap time.Duration) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	for range strokes {
		color := middleware.ColorFromID(uuid.NewString())

		for _, e := range RandomStroke(rng, color, segments) {
			if ctx.Err() != nil {
				return
			}
			h.Broadcast(nil, e)

			if gap > 0 {
				select {
				case <-time.After(gap):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
