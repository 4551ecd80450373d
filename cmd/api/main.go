package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/bootstrap"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/handlers"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/jobs"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/log"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, app.Generation, app.Media, app.Redis, app.Store)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(app.Media, cfg.Retention, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, app)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, app *bootstrap.App) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// in-flight generations see their request context cancelled here
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)
	app.Close()

	logger.Info().Msg("server exited cleanly")
}
