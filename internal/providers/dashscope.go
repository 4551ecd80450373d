package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

const (
	dashScopeVideoPath = "/api/v1/services/aigc/video-generation/video-synthesis"
	dashScopeImagePath = "/api/v1/services/aigc/multimodal-generation/generation"
	dashScopeTaskPath  = "/api/v1/tasks/"

	dashScopeVideoSize = "1280*720"
	dashScopeImageSize = "1328*1328"
)

type dashScopeInput struct {
	Prompt   string             `json:"prompt,omitempty"`
	ImgURL   string             `json:"img_url,omitempty"`
	Messages []dashScopeMessage `json:"messages,omitempty"`
}

type dashScopeMessage struct {
	Role    string             `json:"role"`
	Content []dashScopeContent `json:"content"`
}

type dashScopeContent struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type dashScopeRequest struct {
	Model      string         `json:"model"`
	Input      dashScopeInput `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type dashScopeOutput struct {
	TaskID       string   `json:"task_id"`
	TaskStatus   string   `json:"task_status"`
	Message      string   `json:"message"`
	Code         string   `json:"code"`
	VideoURL     string   `json:"video_url"`
	VideoURLList []string `json:"video_url_list"`
	Videos       []struct {
		URL string `json:"url"`
	} `json:"videos"`
	Results []struct {
		URL string `json:"url"`
	} `json:"results"`
	Choices []struct {
		Message dashScopeMessage `json:"message"`
	} `json:"choices"`
}

type dashScopeResponse struct {
	RequestID string          `json:"request_id"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Output    dashScopeOutput `json:"output"`
}

// DashScopeAdapter speaks the bearer-token DashScope REST API. Video jobs are
// async tasks polled at /api/v1/tasks/{id}; images use the synchronous
// multimodal endpoint and come back already done.
type DashScopeAdapter struct {
	cfg    config.DashScopeEndpoint
	client *http.Client
	log    zerolog.Logger
}

func NewDashScopeAdapter(cfg config.DashScopeEndpoint, client *http.Client, log zerolog.Logger) *DashScopeAdapter {
	return &DashScopeAdapter{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("vendor", string(models.VendorDashScope)).Logger(),
	}
}

func (a *DashScopeAdapter) Vendor() models.Vendor {
	return models.VendorDashScope
}

func (a *DashScopeAdapter) CheckCredentials(creds Credentials) error {
	if creds.APIKey == "" {
		return ErrCredentials
	}
	return nil
}

func (a *DashScopeAdapter) Submit(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	switch job.Kind {
	case models.TaskKindImage:
		return a.submitImage(ctx, job, creds)
	case models.TaskKindVideo, models.TaskKindImageToVideo:
		return a.submitVideo(ctx, job, creds)
	}
	return Submission{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, job.Kind)
}

func (a *DashScopeAdapter) submitVideo(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	payload := dashScopeRequest{
		Model: a.cfg.VideoModel,
		Input: dashScopeInput{Prompt: job.Prompt},
	}
	if job.Kind == models.TaskKindImageToVideo {
		payload.Model = a.cfg.I2VModel
		payload.Input.ImgURL = "data:image/png;base64," + job.ImageBase64
		payload.Parameters = map[string]any{"resolution": "720P"}
	} else {
		payload.Parameters = map[string]any{"size": dashScopeVideoSize}
	}
	if job.Model != "" {
		payload.Model = job.Model
	}

	resp, raw, err := a.call(ctx, http.MethodPost, dashScopeVideoPath, payload, creds, true)
	if err != nil {
		return Submission{}, err
	}
	if resp.Output.TaskID == "" {
		return Submission{}, fmt.Errorf("%w: %s", ErrMissingTaskID, raw)
	}

	a.log.Debug().Str("task_id", resp.Output.TaskID).Str("model", payload.Model).Msg("task submitted")
	return Submission{TaskID: resp.Output.TaskID}, nil
}

func (a *DashScopeAdapter) submitImage(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	model := a.cfg.ImageModel
	if job.Model != "" {
		model = job.Model
	}
	payload := dashScopeRequest{
		Model: model,
		Input: dashScopeInput{Messages: []dashScopeMessage{{
			Role:    "user",
			Content: []dashScopeContent{{Text: job.Prompt}},
		}}},
		Parameters: map[string]any{"size": dashScopeImageSize, "watermark": false},
	}

	resp, raw, err := a.call(ctx, http.MethodPost, dashScopeImagePath, payload, creds, false)
	if err != nil {
		return Submission{}, err
	}

	result := dashScopePollResult(resp)
	if result.Status != models.TaskStatusFailed && result.HasArtifact() {
		result.Status = models.TaskStatusDone
	}
	if !result.HasArtifact() && result.Status != models.TaskStatusFailed {
		return Submission{}, fmt.Errorf("no image in response: %s", raw)
	}

	taskID := firstNonEmpty(resp.Output.TaskID, resp.RequestID)
	return Submission{TaskID: taskID, Result: &result}, nil
}

func (a *DashScopeAdapter) Poll(ctx context.Context, taskID string, job Job, creds Credentials) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrMissingTaskID
	}
	resp, _, err := a.call(ctx, http.MethodGet, dashScopeTaskPath+taskID, nil, creds, false)
	if err != nil {
		return PollResult{}, err
	}
	return dashScopePollResult(resp), nil
}

func dashScopePollResult(resp dashScopeResponse) PollResult {
	out := resp.Output
	result := PollResult{Status: NormalizeDashScopeStatus(out.TaskStatus)}

	if result.Status == models.TaskStatusFailed {
		result.Message = firstNonEmpty(out.Message, resp.Message, out.Code, resp.Code, "task failed")
		return result
	}
	result.ArtifactURL = dashScopeArtifact(out)
	return result
}

// dashScopeArtifact walks the response paths DashScope models use for their
// output, in order of preference.
func dashScopeArtifact(out dashScopeOutput) string {
	if out.VideoURL != "" {
		return out.VideoURL
	}
	if len(out.VideoURLList) > 0 && out.VideoURLList[0] != "" {
		return out.VideoURLList[0]
	}
	if len(out.Videos) > 0 && out.Videos[0].URL != "" {
		return out.Videos[0].URL
	}
	if len(out.Results) > 0 && out.Results[0].URL != "" {
		return out.Results[0].URL
	}
	if len(out.Choices) > 0 {
		for _, c := range out.Choices[0].Message.Content {
			if c.Image != "" {
				return c.Image
			}
		}
	}
	return ""
}

// NormalizeDashScopeStatus maps DashScope task_status values. An empty status
// (synchronous responses carry none) is reported as running.
func NormalizeDashScopeStatus(status string) models.TaskStatus {
	switch strings.ToUpper(status) {
	case "SUCCEEDED":
		return models.TaskStatusDone
	case "FAILED", "CANCELED", "UNKNOWN":
		return models.TaskStatusFailed
	case "PENDING":
		return models.TaskStatusPending
	default:
		return models.TaskStatusRunning
	}
}

func (a *DashScopeAdapter) call(ctx context.Context, method, path string, payload any, creds Credentials, async bool) (dashScopeResponse, string, error) {
	if err := a.CheckCredentials(creds); err != nil {
		return dashScopeResponse{}, "", err
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return dashScopeResponse{}, "", fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	endpoint := strings.TrimSuffix(a.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return dashScopeResponse{}, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if async {
		req.Header.Set("X-DashScope-Async", "enable")
	}

	raw, err := do(a.client, req)
	if err != nil {
		return dashScopeResponse{}, "", err
	}

	var resp dashScopeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return dashScopeResponse{}, string(raw), fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, string(raw), nil
}
