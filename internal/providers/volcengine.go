package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/security"
)

const (
	volcActionSubmit = "CVSync2AsyncSubmitTask"
	volcActionResult = "CVSync2AsyncGetResult"
	volcCodeSuccess  = 10000

	ReqKeyTextToImage     = "jimeng_t2i_v31"
	ReqKeyTextToVideo     = "jimeng_t2v_v30_1080p"
	ReqKeyImageToVideo    = "jimeng_i2v_first_v30_1080"
	ReqKeyImageToVideoPro = "jimeng_ti2v_v30_pro"

	volcImageWidth  = 2560
	volcImageHeight = 1440
	// 121 frames is five seconds of output.
	volcVideoFrames      = 121
	volcVideoAspectRatio = "16:9"
)

type volcSubmitRequest struct {
	ReqKey           string   `json:"req_key"`
	Prompt           string   `json:"prompt"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	BinaryDataBase64 []string `json:"binary_data_base64,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	Frames           int      `json:"frames,omitempty"`
	AspectRatio      string   `json:"aspect_ratio,omitempty"`
}

type volcResultRequest struct {
	ReqKey  string `json:"req_key"`
	TaskID  string `json:"task_id"`
	ReqJSON string `json:"req_json,omitempty"`
}

type volcData struct {
	TaskID           string   `json:"task_id"`
	Status           string   `json:"status"`
	ImageURLs        []string `json:"image_urls"`
	VideoURL         string   `json:"video_url"`
	BinaryDataBase64 []string `json:"binary_data_base64"`
	Message          string   `json:"message"`
}

type volcResponse struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Data      *volcData `json:"data"`
}

// VolcengineAdapter talks to the Volcengine visual (CV) async API. Submit and
// poll are both signed POSTs to the same endpoint, told apart by Action.
type VolcengineAdapter struct {
	cfg    config.VolcengineEndpoint
	client *http.Client
	signer *security.Signer
	log    zerolog.Logger
}

func NewVolcengineAdapter(cfg config.VolcengineEndpoint, client *http.Client, log zerolog.Logger) *VolcengineAdapter {
	return &VolcengineAdapter{
		cfg:    cfg,
		client: client,
		signer: security.NewSigner(cfg.Region, cfg.Service),
		log:    log.With().Str("vendor", string(models.VendorVolcengine)).Logger(),
	}
}

// WithSigner replaces the request signer, e.g. to pin the clock.
func (a *VolcengineAdapter) WithSigner(s *security.Signer) *VolcengineAdapter {
	a.signer = s
	return a
}

func (a *VolcengineAdapter) Vendor() models.Vendor {
	return models.VendorVolcengine
}

func (a *VolcengineAdapter) CheckCredentials(creds Credentials) error {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return ErrCredentials
	}
	return nil
}

// reqKey picks the vendor model for a job. The pro image-to-video model is
// only used when explicitly requested.
func (a *VolcengineAdapter) reqKey(job Job) (string, error) {
	switch job.Kind {
	case models.TaskKindImage:
		if strings.HasPrefix(job.Model, "jimeng_t2i") {
			return job.Model, nil
		}
		return ReqKeyTextToImage, nil
	case models.TaskKindVideo:
		if strings.HasPrefix(job.Model, "jimeng_t2v") {
			return job.Model, nil
		}
		return ReqKeyTextToVideo, nil
	case models.TaskKindImageToVideo:
		if job.Model == ReqKeyImageToVideoPro {
			return ReqKeyImageToVideoPro, nil
		}
		return ReqKeyImageToVideo, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, job.Kind)
}

func (a *VolcengineAdapter) submitBody(job Job, reqKey string) volcSubmitRequest {
	seed := -1
	body := volcSubmitRequest{ReqKey: reqKey, Prompt: job.Prompt}
	switch job.Kind {
	case models.TaskKindImage:
		body.Width = volcImageWidth
		body.Height = volcImageHeight
	case models.TaskKindVideo:
		body.Seed = &seed
		body.Frames = volcVideoFrames
		body.AspectRatio = volcVideoAspectRatio
	case models.TaskKindImageToVideo:
		body.BinaryDataBase64 = []string{job.ImageBase64}
		body.Seed = &seed
		body.Frames = volcVideoFrames
	}
	return body
}

func (a *VolcengineAdapter) Submit(ctx context.Context, job Job, creds Credentials) (Submission, error) {
	reqKey, err := a.reqKey(job)
	if err != nil {
		return Submission{}, err
	}

	resp, raw, err := a.call(ctx, volcActionSubmit, a.submitBody(job, reqKey), creds)
	if err != nil {
		return Submission{}, err
	}
	if resp.Code != 0 && resp.Code != volcCodeSuccess {
		return Submission{}, fmt.Errorf("submit rejected (code %d): %s", resp.Code, raw)
	}
	if resp.Data == nil || resp.Data.TaskID == "" {
		return Submission{}, fmt.Errorf("%w: %s", ErrMissingTaskID, raw)
	}

	a.log.Debug().Str("task_id", resp.Data.TaskID).Str("req_key", reqKey).Msg("task submitted")
	return Submission{TaskID: resp.Data.TaskID}, nil
}

func (a *VolcengineAdapter) Poll(ctx context.Context, taskID string, job Job, creds Credentials) (PollResult, error) {
	reqKey, err := a.reqKey(job)
	if err != nil {
		return PollResult{}, err
	}

	query := volcResultRequest{ReqKey: reqKey, TaskID: taskID}
	if job.Kind == models.TaskKindImage {
		query.ReqJSON = `{"return_url":true}`
	}

	resp, raw, err := a.call(ctx, volcActionResult, query, creds)
	if err != nil {
		return PollResult{}, err
	}
	if resp.Data == nil {
		return PollResult{}, fmt.Errorf("invalid query response: %s", raw)
	}

	return volcPollResult(resp), nil
}

func volcPollResult(resp volcResponse) PollResult {
	data := resp.Data
	result := PollResult{Status: NormalizeVolcengineStatus(data.Status)}

	switch result.Status {
	case models.TaskStatusFailed:
		result.Message = firstNonEmpty(data.Message, resp.Message, "task failed")
	case models.TaskStatusDone:
		switch {
		case len(data.ImageURLs) > 0 && data.ImageURLs[0] != "":
			result.ArtifactURL = data.ImageURLs[0]
		case data.VideoURL != "":
			result.ArtifactURL = data.VideoURL
		case len(data.BinaryDataBase64) > 0:
			if decoded, err := base64.StdEncoding.DecodeString(data.BinaryDataBase64[0]); err == nil {
				result.ArtifactData = decoded
			}
		}
	}
	return result
}

// NormalizeVolcengineStatus maps the CV status vocabulary onto the shared one.
// not_found and expired are terminal; other unrecognized values are treated
// as still running.
func NormalizeVolcengineStatus(status string) models.TaskStatus {
	switch status {
	case "done":
		return models.TaskStatusDone
	case "failed", "not_found", "expired":
		return models.TaskStatusFailed
	case "pending", "in_queue":
		return models.TaskStatusPending
	default:
		return models.TaskStatusRunning
	}
}

func (a *VolcengineAdapter) call(ctx context.Context, action string, payload any, creds Credentials) (volcResponse, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return volcResponse{}, "", fmt.Errorf("marshal request: %w", err)
	}

	query := security.FormatQuery(map[string]string{
		"Action":  action,
		"Version": a.cfg.Version,
	})
	endpoint := strings.TrimSuffix(a.cfg.Endpoint, "/") + "/?" + query

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return volcResponse{}, "", fmt.Errorf("create request: %w", err)
	}
	if a.cfg.Host != "" && !strings.Contains(a.cfg.Endpoint, a.cfg.Host) {
		req.Host = a.cfg.Host
	}

	if err := a.signer.SignRequest(req, body, security.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
	}); err != nil {
		return volcResponse{}, "", err
	}

	raw, err := do(a.client, req)
	if err != nil {
		return volcResponse{}, "", err
	}

	var resp volcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return volcResponse{}, string(raw), fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, string(raw), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
