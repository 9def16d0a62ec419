package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/phenrril/storefront/internal/app"
	"github.com/phenrril/storefront/internal/config"
	"github.com/phenrril/storefront/internal/telemetry"
)

func main() {
	cfg, err := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, "storefront", cfg.OTLPEndpoint)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to init tracing")
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create app")
	}
	defer func() {
		if err := application.Close(); err != nil {
			zlog.Warn().Err(err).Msg("close backends")
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info().Str("addr", server.Addr).Str("env", cfg.AppEnv).Msg("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return application.RunJanitors(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			zlog.Warn().Err(err).Msg("http shutdown")
		}
		if err := shutdownTracing(sctx); err != nil {
			zlog.Warn().Err(err).Msg("tracing shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zlog.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	zlog.Info().Msg("bye")
}
