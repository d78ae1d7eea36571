package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var retranslateInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health and metrics endpoints and refresh outdated translations",
	Long: `Serve the health and Prometheus metrics endpoints. With a non-zero
--retranslate-interval, outdated translations are refreshed in the background.
Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		errCh := make(chan error, 2)

		httpServer := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           newServeMux(cfg.Server.HealthPath, cfg.Server.MetricsPath, time.Now),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Server.ListenAddr).Msg("http server started")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()

		if retranslateInterval > 0 {
			go func() {
				if err := application.Worker.Start(ctx, retranslateInterval); err != nil && ctx.Err() == nil {
					errCh <- fmt.Errorf("worker failed: %w", err)
				}
			}()
			log.Info().
				Dur("interval", retranslateInterval).
				Int("concurrency", cfg.Worker.Concurrency).
				Msg("retranslate worker started")
		}

		var runErr error
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
		case runErr = <-errCh:
			log.Error().Err(runErr).Msg("runtime error")
			cancel()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop http server")
		}
		log.Info().Msg("stopped")
		return runErr
	},
}

func newServeMux(healthPath, metricsPath string, now func() time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"timestamp": now().UTC().Format(time.RFC3339),
		})
	})
	mux.Handle(metricsPath, promhttp.Handler())
	return mux
}

func init() {
	serveCmd.Flags().DurationVar(&retranslateInterval, "retranslate-interval", 0, "refresh outdated translations this often, 0 disables")
}
