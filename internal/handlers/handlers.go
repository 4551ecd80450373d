package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/catalog"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/storage"
)

type HandlerSet struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	generation *service.GenerationService
	media      *service.MediaService
	cache      *redis.Client
	store      *storage.ObjectStore
}

// NewHandlerSet wires the HTTP surface. cache and store may be nil when the
// event stream or the object mirror is not configured.
func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, generation *service.GenerationService, media *service.MediaService, cache *redis.Client, store *storage.ObjectStore) HandlerSet {
	return HandlerSet{
		log:        log,
		cfg:        cfg,
		generation: generation,
		media:      media,
		cache:      cache,
		store:      store,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	router.POST("/generate-images", h.GenerateImages)
	router.POST("/generate-videos", h.GenerateVideos)
	router.POST("/image-to-video", h.ImageToVideo)

	router.GET("/media/list", h.ListMedia)
	router.DELETE("/media/delete", h.DeleteMedia)

	router.GET("/scan-generated", h.ScanGenerated)
	router.DELETE("/delete-generated", h.DeleteGenerated)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, catalog.ErrOutsideDirectory),
		errors.Is(err, catalog.ErrInvalidFilename):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h HandlerSet) fail(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg(msg)
	c.JSON(status, gin.H{"error": err.Error()})
}
