package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/momentics/wsproto/control"
	"github.com/momentics/wsproto/protocol"
	"github.com/momentics/wsproto/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		listen        string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo server",
		Long: `Run a WebSocket server that sends every message back with the same
opcode. Metrics, health and debug state are served over plain HTTP on the
metrics address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if metricsListen != "" {
				cfg.Server.MetricsListen = metricsListen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			metrics := control.NewMetrics(control.WithRegistry(reg))
			probes := control.NewDebugProbes()
			log := slog.Default()

			srv, err := server.New(echoApp(), cfg.ServerConfig(),
				server.WithLogger(log.With("component", "server")),
				server.WithMetrics(metrics),
				server.WithProbes(probes),
				server.WithMiddleware(server.Logging(log)),
			)
			if err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}

			hs := &http.Server{
				Addr:              cfg.Server.MetricsListen,
				Handler:           newRouter(reg, probes),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server", "err", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = hs.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "listening on ws://%s (metrics on http://%s)\n", srv.Addr(), cfg.Server.MetricsListen)
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "WebSocket listen address")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "metrics/health listen address")

	return cmd
}

// echoApp sends every data message back with its opcode.
func echoApp() server.Application {
	return server.ApplicationFuncs{
		Message: func(c *server.Connection, m protocol.Message) {
			if err := c.SendOpcode(m.Opcode, m.Payload); err != nil {
				c.Logger().Warn("echo", "err", err)
			}
		},
		Error: func(c *server.Connection, err error) {
			c.Logger().Warn("connection error", "err", err)
		},
	}
}

func newRouter(reg *prometheus.Registry, probes *control.DebugProbes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/debug/state", probes)
	return r
}
