package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/Tk21111/drawsync/api"
	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/Tk21111/drawsync/ws"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRouter(ctx context.Context, h *ws.Hub, cfg config.Config, sessions api.SessionStore, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/ws", ws.Handler(h, cfg))

	r.Get("/healthz", api.Health())
	r.Get("/stats", api.Stats(h))
	r.Get("/sessions", api.Sessions(sessions))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if !cfg.IsProd() {
		r.Post("/debug/burn", api.Burn(func(strokes, segments int) {
			go ws.Burn(ctx, h, strokes, segments, 5*time.Millisecond)
		}))
	}

	return r
}
