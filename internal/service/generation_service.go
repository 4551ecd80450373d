package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/events"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/materializer"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/sniffer"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/providers"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/tasks"
)

var (
	ErrValidation  = errors.New("invalid request")
	ErrCredentials = errors.New("missing vendor credentials")
)

// Mirror receives a copy of each materialized file and is told about
// deletions. Failures are logged, never returned to the caller.
type Mirror interface {
	Put(ctx context.Context, mediaType models.MediaType, filename string, data []byte, contentType string) error
	Remove(ctx context.Context, mediaType models.MediaType, filename string) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type GenerateInput struct {
	Kind   models.TaskKind
	Prompt string
	// Image is the image-to-video source frame, raw base64 or a data: URL.
	Image     string
	Vendor    string
	Model     string
	AccessKey string
	SecretKey string
	APIKey    string
}

type GeneratedMedia struct {
	// ID is the filename without its extension.
	ID       string
	Type     models.MediaType
	URL      string
	Filename string
	Prompt   string
	// ImageBytes is the base64 artifact, filled for images only.
	ImageBytes string
	MIME       string
	Width      int
	Height     int
	CreatedAt  time.Time
	// Saved is false when the file could not be written and URL points at
	// the vendor copy or an inline data URL instead.
	Saved bool
	Task  models.GenerationTask
}

type GenerationService struct {
	cfg       *config.AppConfig
	registry  *providers.Registry
	runner    *tasks.Client
	writer    *materializer.Materializer
	mirror    Mirror
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewGenerationService(cfg *config.AppConfig, registry *providers.Registry, runner *tasks.Client, writer *materializer.Materializer, mirror Mirror, publisher Publisher, log zerolog.Logger) *GenerationService {
	return &GenerationService{
		cfg:       cfg,
		registry:  registry,
		runner:    runner,
		writer:    writer,
		mirror:    mirror,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

func (s *GenerationService) Generate(ctx context.Context, input GenerateInput) (GeneratedMedia, error) {
	job, err := s.buildJob(input)
	if err != nil {
		return GeneratedMedia{}, err
	}

	vendor, err := s.vendorFor(input)
	if err != nil {
		return GeneratedMedia{}, err
	}
	// generation.videomodel names a Volcengine req_key; other vendors keep
	// their own configured models.
	if vendor == models.VendorVolcengine && job.Kind != models.TaskKindImage && job.Model == "" {
		job.Model = s.cfg.Generation.VideoModel
	}
	adapter, err := s.registry.Get(vendor)
	if err != nil {
		return GeneratedMedia{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	creds := s.credentialsFor(vendor, input)
	if err := adapter.CheckCredentials(creds); err != nil {
		return GeneratedMedia{}, fmt.Errorf("%w: no %s credentials for %s", ErrCredentials, vendor, job.Kind)
	}

	result, err := s.runner.Run(ctx, adapter, job, creds)
	if err != nil {
		return GeneratedMedia{}, err
	}

	return s.materialize(ctx, job.Prompt, job.Kind.MediaType(), result), nil
}

func (s *GenerationService) buildJob(input GenerateInput) (providers.Job, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return providers.Job{}, fmt.Errorf("%w: prompt is required", ErrValidation)
	}

	job := providers.Job{Kind: input.Kind, Prompt: prompt, Model: input.Model}
	switch input.Kind {
	case models.TaskKindImage:
	case models.TaskKindVideo, models.TaskKindImageToVideo:
	default:
		return providers.Job{}, fmt.Errorf("%w: unknown kind %q", ErrValidation, input.Kind)
	}

	if input.Kind == models.TaskKindImageToVideo {
		image, err := normalizeImage(input.Image)
		if err != nil {
			return providers.Job{}, err
		}
		job.ImageBase64 = image
	}
	return job, nil
}

// normalizeImage strips a data: URL prefix and checks the payload decodes.
func normalizeImage(image string) (string, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return "", fmt.Errorf("%w: image is required", ErrValidation)
	}
	if strings.HasPrefix(image, "data:") {
		comma := strings.IndexByte(image, ',')
		if comma < 0 {
			return "", fmt.Errorf("%w: malformed data URL", ErrValidation)
		}
		image = image[comma+1:]
	}
	if _, err := base64.StdEncoding.DecodeString(image); err != nil {
		return "", fmt.Errorf("%w: image is not valid base64", ErrValidation)
	}
	return image, nil
}

func (s *GenerationService) vendorFor(input GenerateInput) (models.Vendor, error) {
	name := input.Vendor
	if name == "" {
		name = s.cfg.Generation.VideoVendor
		if input.Kind == models.TaskKindImage {
			name = s.cfg.Generation.ImageVendor
		}
	}
	vendor, err := providers.ParseVendor(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return vendor, nil
}

// credentialsFor fills each field from the request, falling back field by
// field to the configured default for the vendor and kind.
func (s *GenerationService) credentialsFor(vendor models.Vendor, input GenerateInput) providers.Credentials {
	defaults := s.cfg.Credentials
	switch vendor {
	case models.VendorVolcengine:
		pair := defaults.Volcengine.Video
		if input.Kind == models.TaskKindImage {
			pair = defaults.Volcengine.Image
		}
		return providers.Credentials{
			AccessKeyID:     firstNonEmpty(input.AccessKey, pair.AccessKey),
			SecretAccessKey: firstNonEmpty(input.SecretKey, pair.SecretKey),
		}
	case models.VendorDashScope:
		return providers.Credentials{APIKey: firstNonEmpty(input.APIKey, defaults.DashScope.APIKey)}
	case models.VendorArk:
		return providers.Credentials{APIKey: firstNonEmpty(input.APIKey, defaults.Ark.APIKey)}
	}
	return providers.Credentials{}
}

func (s *GenerationService) materialize(ctx context.Context, prompt string, mediaType models.MediaType, result tasks.Result) GeneratedMedia {
	format := sniffer.Detect(result.Data, result.ContentType, mediaType)
	media := GeneratedMedia{
		Type:      mediaType,
		Prompt:    prompt,
		MIME:      format.MIME,
		CreatedAt: s.now().UTC(),
		Task:      result.Task,
	}
	if mediaType == models.MediaTypeImage {
		media.ImageBytes = base64.StdEncoding.EncodeToString(result.Data)
		media.Width, media.Height, _ = sniffer.Dimensions(result.Data)
	}

	logger := s.log.With().Str("task_id", result.Task.TaskID).Str("vendor", string(result.Task.Vendor)).Logger()

	saved, err := s.writer.Materialize(result.Data, prompt, mediaType, format.Extension())
	if err != nil {
		logger.Error().Err(err).Msg("save generated media failed")
		media.ID = fmt.Sprintf("%d-0", media.CreatedAt.UnixMilli())
		media.URL = result.SourceURL
		if mediaType == models.MediaTypeImage || media.URL == "" {
			media.URL = "data:" + format.MIME + ";base64," + base64.StdEncoding.EncodeToString(result.Data)
		}
		return media
	}

	media.Saved = true
	media.Filename = saved.Filename
	media.ID = strings.TrimSuffix(saved.Filename, "."+format.Extension())
	media.URL = saved.PublicPath
	media.CreatedAt = saved.Timestamp
	logger.Info().Str("filename", saved.Filename).Int("bytes", len(result.Data)).Msg("media saved")

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, mediaType, saved.Filename, result.Data, format.MIME); err != nil {
			logger.Warn().Err(err).Str("filename", saved.Filename).Msg("mirror upload failed")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.Event{
			Action:   events.ActionGenerated,
			Type:     mediaType,
			Filename: saved.Filename,
			URL:      saved.PublicPath,
			Prompt:   prompt,
			TaskID:   result.Task.TaskID,
			Vendor:   result.Task.Vendor,
			At:       saved.Timestamp,
		}); err != nil {
			logger.Warn().Err(err).Str("filename", saved.Filename).Msg("publish event failed")
		}
	}
	return media
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
