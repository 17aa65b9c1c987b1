package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhejian/shorty/internal/config"
	"github.com/zhejian/shorty/internal/infra"
	"github.com/zhejian/shorty/internal/observability"
	"github.com/zhejian/shorty/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from .env and environment variables
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Wait for interrupt signal (Ctrl+C or SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Server.Environment,
		LogLevel:     cfg.Observability.LogLevel,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		SampleRatio:  cfg.Observability.SampleRatio,
	})
	if err != nil {
		return err
	}
	logger := obs.Logger
	slog.SetDefault(logger)

	// The namespace is fixed for the lifetime of the process
	store, err := infra.NewStore(ctx, cfg, logger)
	if err != nil {
		_ = obs.Shutdown(context.Background())
		return err
	}

	srv, tracker := server.NewServer(cfg, server.Dependencies{
		Store:          store,
		Metrics:        obs.Metrics,
		MetricsHandler: obs.MetricsHandler(),
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("base_url", cfg.App.BaseURL),
			slog.String("namespace", string(store.Namespace())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		// Let in-flight click tracking finish before the store goes away
		tracker.Wait()
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := obs.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server exited gracefully")
	return nil
}
