package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docnarrate/internal/api"
	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/metrics"
	"github.com/dgallion1/docnarrate/internal/pipeline"
)

func newServeCmd(cfg *config.Config, debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [Key=Value ...]",
		Short: "Accept uploads over HTTP and narrate them in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(*debug, cfg.LogLevel)
			if err := cfg.ApplyArgs(args); err != nil {
				return err
			}
			return serve(cmd.Context(), *cfg, log)
		},
	}
	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	client, conv, err := converter(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer client.Close()

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, conv, m, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, client, prometheus.DefaultGatherer, log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting docnarrate", "port", cfg.Port, "tts", client.Endpoint())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		orch.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}
