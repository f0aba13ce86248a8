package api

import (
	"context"
	"net/http"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"go.uber.org/zap"
)

// HubStats is what the stats endpoint reads from the hub.
type HubStats interface {
	ID() string
	Len() int
}

type SessionStore interface {
	RecentSessions(ctx context.Context, limit int) ([]config.Session, error)
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func Stats(h HubStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"instance":    h.ID(),
			"connections": h.Len(),
		})
	}
}

// Sessions lists recent connections from the audit log. A nil store means
// auditing is off.
func Sessions(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "audit disabled", http.StatusNotFound)
			return
		}

		limit, ok := parseLimit(r.URL.Query().Get("limit"), 50, 500)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		sessions, err := store.RecentSessions(r.Context(), limit)
		if err != nil {
			logx.From(r.Context()).Error("recent_sessions", zap.Error(err))
			http.Error(w, "fail to get sessions", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, sessions)
	}
}

// Burn triggers synthetic strokes. Only mounted outside prod.
func Burn(run func(strokes, segments int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		strokes, ok := parseLimit(r.URL.Query().Get("strokes"), 10, 1000)
		if !ok {
			http.Error(w, "invalid strokes", http.StatusBadRequest)
			return
		}
		segments, ok := parseLimit(r.URL.Query().Get("segments"), 20, 1000)
		if !ok {
			http.Error(w, "invalid segments", http.StatusBadRequest)
			return
		}

		run(strokes, segments)
		writeJSON(w, http.StatusAccepted, map[string]int{
			"strokes":  strokes,
			"segments": segments,
		})
	}
}
