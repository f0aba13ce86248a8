package ws

import (
	"net/http"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades the request and serves the connection on h until it
// closes. There is no handshake beyond the upgrade.
func Handler(h *Hub, cfg config.Config) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an error status
			logx.From(r.Context()).Warn("upgrade", zap.Error(err))
			return
		}

		opts := append(ConnOptionsFromConfig(cfg),
			WithPeer(r.RemoteAddr, r.UserAgent()),
			WithConnMetrics(h.Metrics()),
		)
		c := newConn(conn, opts...)

		if err := h.Serve(r.Context(), c); err != nil {
			logx.From(r.Context()).Info("conn_rejected", zap.String("conn_id", c.ID()), zap.Error(err))
		}
	}
}
