package middleware

import (
	"net/http"
	"slices"
)

// OriginAllowed reports whether origin is in allowed. "*" matches anything,
// and an empty origin (non-browser client) is always accepted.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && OriginAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}

			// Preflight request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
