package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tk21111/drawsync/api"
	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/db"
	"github.com/Tk21111/drawsync/internal/logx"
	"github.com/Tk21111/drawsync/metrics"
	"github.com/Tk21111/drawsync/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the drawing hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	f.StringSliceVar(&cfg.AllowedOrigins, "origins", cfg.AllowedOrigins, "allowed websocket origins, * for any")
	f.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "queued frames per connection before it is dropped")
	f.StringVar(&cfg.AuditDB, "audit-db", cfg.AuditDB, "sqlite file for the connection audit log, empty disables")
	f.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis url for relaying between instances, empty disables")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logx.Init(cfg.Env)
	defer logx.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	instance := ksuid.New().String()
	opts := []ws.HubOption{
		ws.WithInstanceID(instance),
		ws.WithHubLogger(logx.L),
		ws.WithMetrics(metrics.New(metrics.WithRegistry(reg))),
	}

	var sessions api.SessionStore
	if cfg.AuditDB != "" {
		w, err := db.NewWriter(cfg.AuditDB)
		if err != nil {
			return err
		}
		defer w.Close()

		opts = append(opts, ws.WithAuditor(w))
		sessions = w
	}

	if cfg.RedisURL != "" {
		r, err := ws.NewRedisRelay(cfg.RedisURL, cfg.RedisChannel, instance, logx.L)
		if err != nil {
			return err
		}
		defer r.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = r.Ping(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		opts = append(opts, ws.WithRelay(r))
	}

	h := ws.NewHub(opts...)

	go func() {
		if err := h.Run(ctx); err != nil {
			logx.L.Error("relay_stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, h, cfg, sessions, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logx.L.Info("ws_running",
		zap.String("addr", cfg.Addr),
		zap.String("instance", instance),
		zap.Bool("audit", sessions != nil),
		zap.Bool("relay", cfg.RedisURL != ""),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logx.L.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	h.Close()
	return srv.Shutdown(shutdownCtx)
}
