package middleware

import (
	"fmt"
	"hash/fnv"
)

// Palette is the fixed set offered by the drawing page. Peers may send any
// other color string.
var Palette = []string{"black", "red", "green", "blue", "yellow"}

const DefaultColor = "black"

// ColorFromID derives a stable hsl color for simulated clients.
func ColorFromID(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	hash := h.Sum32()

	hue := int(hash % 360)
	return fmt.Sprintf("hsl(%d, 70%%, 55%%)", hue)
}
