package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// serveMetricsInBackground starts an HTTP server exposing registry at
// /metrics and returns a func that shuts it down. Used both by serve-metrics
// itself and by ingest's optional --metrics-addr flag, so a running job's
// live registry is observable while it works rather than only after exit.
func serveMetricsInBackground(logger *slog.Logger, addr string, registry *prometheus.Registry) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return srv.Shutdown
}

func newServeMetricsCmd(logger *slog.Logger) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose the pipeline's Prometheus metrics over HTTP until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeMetrics(cmd.Context(), logger, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address (host:port)")
	return cmd
}

func runServeMetrics(ctx context.Context, logger *slog.Logger, addr string) error {
	_, registry := buildMetrics()

	shutdown := serveMetricsInBackground(logger, addr, registry)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		return exitCode(2, fmt.Errorf("shutdown metrics server: %w", err))
	}
	return nil
}
