package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLimit parses a positive integer query value, returning def when it
// is empty and capping it at ceiling.
func parseLimit(raw string, def, ceiling int) (int, bool) {
	if raw == "" {
		return def, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > ceiling {
		n = ceiling
	}
	return n, true
}
