package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

const arkImageSize = "2K"

// ArkAdapter drives Volcengine Ark through the official SDK. A client is built
// per call because the API key arrives with each request.
type ArkAdapter struct {
	cfg config.ArkEndpoint
	log zerolog.Logger
}

func NewArkAdapter(cfg config.ArkEndpoint, log zerolog.Logger) *ArkAdapter {
	return &ArkAdapter{
		cfg: cfg,
		log: log.With().Str("vendor", string(models.VendorArk)).Logger(),
	}
}

func (a *ArkAdapter) Vendor() models.Vendor {
	return models.VendorArk
}

func (a *ArkAdapter) CheckCredentials(creds Credentials) error {
	if creds.APIKey == "" {
		return ErrCredentials
	}
	return nil
}

func (a *ArkAdapter) client(creds Credentials) *arkruntime.Client {
	return arkruntime.NewClientWithApiKey(creds.APIKey, arkruntime.WithBaseUrl(a.cfg.BaseURL))
}

func (a *ArkAdapter) Submit(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	if err := a.CheckCredentials(creds); err != nil {
		return Submission{}, err
	}
	switch job.Kind {
	case models.TaskKindImage:
		return a.generateImage(ctx, job, creds)
	case models.TaskKindVideo, models.TaskKindImageToVideo:
		return a.createVideoTask(ctx, job, creds)
	}
	return Submission{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, job.Kind)
}

func (a *ArkAdapter) generateImage(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	modelID := a.cfg.ImageModel
	if job.Model != "" {
		modelID = job.Model
	}

	resp, err := a.client(creds).GenerateImages(ctx, model.GenerateImagesRequest{
		Model:          modelID,
		Prompt:         job.Prompt,
		Size:           volcengine.String(arkImageSize),
		ResponseFormat: volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	})
	if err != nil {
		return Submission{}, fmt.Errorf("generate images: %w", err)
	}
	if resp.Error != nil {
		return Submission{}, fmt.Errorf("generate images rejected (%s): %s", resp.Error.Code, resp.Error.Message)
	}

	result := PollResult{Status: models.TaskStatusFailed, Message: "no image in response"}
	for _, img := range resp.Data {
		if img != nil && img.Url != nil && *img.Url != "" {
			result = PollResult{Status: models.TaskStatusDone, ArtifactURL: *img.Url}
			break
		}
	}
	return Submission{TaskID: "sync-" + modelID, Result: &result}, nil
}

func (a *ArkAdapter) createVideoTask(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	modelID := a.cfg.VideoModel
	if job.Model != "" {
		modelID = job.Model
	}

	content := []*model.CreateContentGenerationContentItem{{
		Type: model.ContentGenerationContentItemTypeText,
		Text: volcengine.String(job.Prompt),
	}}
	if job.Kind == models.TaskKindImageToVideo {
		content = append(content, &model.CreateContentGenerationContentItem{
			Type:     model.ContentGenerationContentItemTypeImage,
			ImageURL: &model.ImageURL{URL: "data:image/png;base64," + job.ImageBase64},
		})
	}

	resp, err := a.client(creds).CreateContentGenerationTask(ctx, model.CreateContentGenerationTaskRequest{
		Model:   modelID,
		Content: content,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("create content generation task: %w", err)
	}
	if resp.ID == "" {
		return Submission{}, ErrMissingTaskID
	}

	a.log.Debug().Str("task_id", resp.ID).Str("model", modelID).Msg("task submitted")
	return Submission{TaskID: resp.ID}, nil
}

func (a *ArkAdapter) Poll(ctx context.Context, taskID string, job Job, creds Credentials) (PollResult, error) {
	if err := a.CheckCredentials(creds); err != nil {
		return PollResult{}, err
	}

	req := model.GetContentGenerationTaskRequest{}
	req.ID = taskID
	resp, err := a.client(creds).GetContentGenerationTask(ctx, req)
	if err != nil {
		return PollResult{}, fmt.Errorf("get content generation task: %w", err)
	}

	status := string(resp.Status)
	result := PollResult{Status: NormalizeArkStatus(status)}
	switch result.Status {
	case models.TaskStatusFailed:
		result.Message = "task " + status
		if resp.Error != nil && resp.Error.Message != "" {
			result.Message = resp.Error.Message
		}
	case models.TaskStatusDone:
		result.ArtifactURL = resp.Content.VideoURL
	}
	return result, nil
}

// NormalizeArkStatus maps content-generation task states.
func NormalizeArkStatus(status string) models.TaskStatus {
	switch strings.ToLower(status) {
	case "succeeded":
		return models.TaskStatusDone
	case "failed", "cancelled", "canceled", "expired":
		return models.TaskStatusFailed
	case "queued":
		return models.TaskStatusPending
	default:
		return models.TaskStatusRunning
	}
}
