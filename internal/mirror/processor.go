// Package mirror replays media events against object storage, for
// deployments where uploads run outside the request path.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/events"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/catalog"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/sniffer"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

type Store interface {
	Put(ctx context.Context, mediaType models.MediaType, filename string, data []byte, contentType string) error
	Remove(ctx context.Context, mediaType models.MediaType, filename string) error
}

type Processor struct {
	store   Store
	catalog *catalog.Catalog
	log     zerolog.Logger
}

func NewProcessor(store Store, cat *catalog.Catalog, log zerolog.Logger) *Processor {
	return &Processor{store: store, catalog: cat, log: log}
}

// Handle is an events.Handler. A returned error leaves the message pending
// so it is retried or claimed by another worker.
func (p *Processor) Handle(ctx context.Context, e events.Event) error {
	if _, ok := models.ParseMediaType(string(e.Type)); !ok || e.Filename == "" {
		p.log.Warn().Str("message_id", e.ID).Msg("malformed media event")
		return nil
	}

	switch e.Action {
	case events.ActionGenerated:
		return p.upload(ctx, e)
	case events.ActionDeleted, events.ActionSwept:
		if err := p.store.Remove(ctx, e.Type, e.Filename); err != nil {
			return fmt.Errorf("mirror remove %s: %w", e.Filename, err)
		}
		p.log.Info().Str("filename", e.Filename).Str("action", string(e.Action)).Msg("mirror removed")
		return nil
	default:
		p.log.Warn().Str("action", string(e.Action)).Msg("unknown media event")
		return nil
	}
}

func (p *Processor) upload(ctx context.Context, e events.Event) error {
	data, err := p.catalog.ReadFile(e.Filename, e.Type)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrOutsideDirectory) || errors.Is(err, catalog.ErrInvalidFilename) {
			// gone already, or never ours; a later delete event covers the mirror
			p.log.Warn().Err(err).Str("filename", e.Filename).Msg("skip mirror upload")
			return nil
		}
		return err
	}

	format := sniffer.Detect(data, "", e.Type)
	if err := p.store.Put(ctx, e.Type, e.Filename, data, format.MIME); err != nil {
		return fmt.Errorf("mirror put %s: %w", e.Filename, err)
	}
	p.log.Info().Str("filename", e.Filename).Int("bytes", len(data)).Msg("mirror uploaded")
	return nil
}
