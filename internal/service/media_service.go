package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/events"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/catalog"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

// MediaService is the read and delete side of the catalog, plus the
// notifications that follow a removal.
type MediaService struct {
	catalog   *catalog.Catalog
	mirror    Mirror
	publisher Publisher
	log       zerolog.Logger
}

func NewMediaService(cat *catalog.Catalog, mirror Mirror, publisher Publisher, log zerolog.Logger) *MediaService {
	return &MediaService{
		catalog:   cat,
		mirror:    mirror,
		publisher: publisher,
		log:       log,
	}
}

// ParseType accepts "image", "video" or, when allowEmpty is set, "" for both.
func ParseType(raw string, allowEmpty bool) (models.MediaType, error) {
	if raw == "" && allowEmpty {
		return "", nil
	}
	t, ok := models.ParseMediaType(raw)
	if !ok {
		return "", fmt.Errorf("%w: type must be 'image' or 'video'", ErrValidation)
	}
	return t, nil
}

func (s *MediaService) Scan(ctx context.Context, filter models.MediaType) ([]models.MediaFile, error) {
	return s.catalog.Scan(ctx, filter)
}

func (s *MediaService) List(ctx context.Context, filter models.MediaType, page, limit int) (catalog.Page, error) {
	return s.catalog.List(ctx, filter, page, limit)
}

// Delete removes a file by catalog id. The id may be a bare filename, a
// filename without extension, or carry the "img-"/"vid-" catalog prefix.
func (s *MediaService) Delete(ctx context.Context, id string, mediaType models.MediaType) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: id is required", ErrValidation)
	}
	filename := strings.TrimPrefix(id, mediaType.IDPrefix())

	removed, err := s.catalog.Remove(ctx, filename, mediaType)
	if err != nil || removed == "" {
		return false, err
	}
	s.afterRemove(ctx, events.ActionDeleted, mediaType, removed)
	return true, nil
}

// DeleteExact removes exactly filename from the type directory.
func (s *MediaService) DeleteExact(ctx context.Context, filename string, mediaType models.MediaType) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if err := s.catalog.DeleteExact(ctx, filename, mediaType); err != nil {
		return err
	}
	s.afterRemove(ctx, events.ActionDeleted, mediaType, filename)
	return nil
}

// Sweep removes files older than maxAge.
func (s *MediaService) Sweep(ctx context.Context, maxAge time.Duration) ([]models.MediaFile, error) {
	removed, err := s.catalog.Sweep(ctx, time.Now().Add(-maxAge))
	for _, f := range removed {
		s.afterRemove(ctx, events.ActionSwept, f.Type, f.Filename)
	}
	return removed, err
}

func (s *MediaService) afterRemove(ctx context.Context, action events.Action, mediaType models.MediaType, filename string) {
	logger := s.log.With().Str("filename", filename).Str("type", string(mediaType)).Logger()
	logger.Info().Str("action", string(action)).Msg("media removed")

	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, mediaType, filename); err != nil {
			logger.Warn().Err(err).Msg("mirror remove failed")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.Event{
			Action:   action,
			Type:     mediaType,
			Filename: filename,
		}); err != nil {
			logger.Warn().Err(err).Msg("publish event failed")
		}
	}
}
