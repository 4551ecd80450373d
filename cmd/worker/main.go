package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/bootstrap"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/events"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/log"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/mirror"
)

// The worker keeps the object store in step with the media event stream when
// storage.async is set.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer app.Close()

	if app.Redis == nil || app.Store == nil {
		logger.Fatal().Msg("worker needs both redis.addr and storage.enabled")
	}

	processor := mirror.NewProcessor(app.Store, app.Catalog, logger)
	reader := events.NewReader(app.Redis, cfg.Redis.Stream, logger).WithClaimInterval(cfg.Redis.ClaimInterval)

	logger.Info().
		Str("stream", cfg.Redis.Stream).
		Str("group", cfg.Redis.Group).
		Str("consumer", cfg.Redis.Consumer).
		Msg("mirror worker started")

	if err := reader.Consume(ctx, cfg.Redis.Group, cfg.Redis.Consumer, processor.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited")
}
