// Package bootstrap wires the configured services for every binary in the
// repo. Optional backends (redis, object storage) come back nil when they
// are not configured.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/cache"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/events"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/catalog"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/materializer"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/providers"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/storage"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/tasks"
)

type App struct {
	Config     *config.AppConfig
	Log        zerolog.Logger
	Redis      *redis.Client
	Store      *storage.ObjectStore
	Publisher  *events.Publisher
	Catalog    *catalog.Catalog
	Registry   *providers.Registry
	Generation *service.GenerationService
	Media      *service.MediaService
}

func New(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*App, error) {
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	var store *storage.ObjectStore
	if cfg.Storage.Enabled {
		store, err = storage.NewObjectStore(cfg.Storage)
		if err != nil {
			closeRedis(redisClient, log)
			return nil, fmt.Errorf("init object store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Warn().Err(err).Msg("ensure bucket failed")
		}
	}

	publisher := events.NewPublisher(redisClient, cfg.Redis.Stream, log)

	vendorClient := &http.Client{Timeout: cfg.Vendors.Timeout}
	registry := providers.NewRegistry(
		providers.NewVolcengineAdapter(cfg.Vendors.Volcengine, vendorClient, log),
		providers.NewDashScopeAdapter(cfg.Vendors.DashScope, vendorClient, log),
		providers.NewArkAdapter(cfg.Vendors.Ark, log),
	)

	runner := tasks.NewClient(tasks.Config{
		ImagePoll:        cfg.Generation.ImagePoll,
		VideoPoll:        cfg.Generation.VideoPoll,
		MaxArtifactBytes: cfg.Media.MaxArtifactBytes,
	}, &http.Client{Timeout: cfg.Media.DownloadTimeout}, log)

	writer := materializer.New(cfg.Media.PublicDir, cfg.Media.ImagePromptLimit, cfg.Media.VideoPromptLimit)
	cat := catalog.New(cfg.Media.PublicDir)

	// A typed nil must not reach the services as a non-nil interface.
	var mirror service.Mirror
	if store != nil && !(cfg.Storage.Async && publisher.Enabled()) {
		mirror = store
	}
	var pub service.Publisher
	if publisher.Enabled() {
		pub = publisher
	}

	return &App{
		Config:     cfg,
		Log:        log,
		Redis:      redisClient,
		Store:      store,
		Publisher:  publisher,
		Catalog:    cat,
		Registry:   registry,
		Generation: service.NewGenerationService(cfg, registry, runner, writer, mirror, pub, log),
		Media:      service.NewMediaService(cat, mirror, pub, log),
	}, nil
}

func (a *App) Close() {
	closeRedis(a.Redis, a.Log)
}

func closeRedis(client *redis.Client, log zerolog.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Error().Err(err).Msg("redis close error")
	}
}
