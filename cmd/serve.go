package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilgisen/feedcore/internal/api"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/scheduler"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed HTTP API",
		Description: `Starts the HTTP API and the refresh scheduler.

The scheduler probes the remote feed etag every FEED_CHECK_INTERVAL and
reloads the similarity matrix every MATRIX_REFRESH_INTERVAL. Metrics are
exposed on /metrics.`,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			log := logger.Get()
			log.Info().Str("locale", cfg.Locale).Msg("Starting feedcore...")

			app := api.NewApp(cfg, api.NewHandlers(cfg, svc.feed, svc.suggestions, svc.directory))

			go scheduler.New(svc.feed, svc.suggestions, cfg.FeedCheckInterval, cfg.MatrixRefreshInterval).
				WithDirectory(svc.directory).
				Run(ctx)

			// Start server in a goroutine
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.Port).Msg("Starting server")
				errCh <- app.Listen(":" + cfg.Port)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down server...")

			// Create a deadline for graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}

			log.Info().Msg("Server exited properly")
			return nil
		},
	}
}
