// Package tasks drives one vendor job from submit to downloaded artifact.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/ids"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/providers"
)

var (
	ErrSubmit           = errors.New("vendor submit failed")
	ErrTaskFailed       = errors.New("generation task failed")
	ErrTimedOut         = errors.New("generation task timed out")
	ErrArtifactDownload = errors.New("artifact download failed")
)

const defaultMaxArtifactBytes = 512 << 20

type Config struct {
	ImagePoll        config.PollConfig
	VideoPoll        config.PollConfig
	MaxArtifactBytes int64
}

// Result is a finished task together with its artifact bytes.
type Result struct {
	Task        models.GenerationTask
	Data        []byte
	ContentType string
	SourceURL   string
}

// Client runs the submit, poll and download sequence. It holds no per-task
// state, so one Client serves any number of concurrent requests.
type Client struct {
	cfg      Config
	download *http.Client
	log      zerolog.Logger
	now      func() time.Time
}

func NewClient(cfg Config, download *http.Client, log zerolog.Logger) *Client {
	if download == nil {
		download = http.DefaultClient
	}
	if cfg.MaxArtifactBytes <= 0 {
		cfg.MaxArtifactBytes = defaultMaxArtifactBytes
	}
	return &Client{
		cfg:      cfg,
		download: download,
		log:      log,
		now:      time.Now,
	}
}

func (c *Client) pollConfig(kind models.TaskKind) config.PollConfig {
	if kind == models.TaskKindImage {
		return c.cfg.ImagePoll
	}
	return c.cfg.VideoPoll
}

// Run submits job once, polls until a terminal status or the attempt budget is
// spent, then fetches the artifact. Cancelling ctx stops the loop and returns
// ctx.Err(). The returned Result carries the task even when err is non-nil.
func (c *Client) Run(ctx context.Context, adapter providers.Adapter, job providers.Job, creds providers.Credentials) (Result, error) {
	task := models.GenerationTask{
		ID:     ids.New(),
		Vendor: adapter.Vendor(),
		Kind:   job.Kind,
		Status: models.TaskStatusPending,
	}
	logger := c.log.With().
		Str("id", task.ID).
		Str("vendor", string(task.Vendor)).
		Str("kind", string(task.Kind)).
		Logger()

	sub, err := adapter.Submit(ctx, job, creds)
	if err != nil {
		task.Status = models.TaskStatusFailed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Task: task}, ctxErr
		}
		logger.Error().Err(err).Msg("submit failed")
		return Result{Task: task}, fmt.Errorf("%w: %w", ErrSubmit, err)
	}

	task.TaskID = sub.TaskID
	task.SubmittedAt = c.now()
	logger = logger.With().Str("task_id", task.TaskID).Logger()
	logger.Info().Msg("task submitted")

	var final providers.PollResult
	if sub.Result != nil && (sub.Result.Status == models.TaskStatusDone || sub.Result.Status == models.TaskStatusFailed) {
		final = *sub.Result
	} else {
		final, err = c.poll(ctx, logger, adapter, &task, job, creds)
		if err != nil {
			return Result{Task: task}, err
		}
	}

	switch final.Status {
	case models.TaskStatusFailed:
		task.Status = models.TaskStatusFailed
		task.Message = final.Message
		logger.Warn().Str("message", final.Message).Msg("task failed")
		return Result{Task: task}, fmt.Errorf("%w: %s", ErrTaskFailed, final.Message)
	case models.TaskStatusDone:
		if !final.HasArtifact() {
			task.Status = models.TaskStatusFailed
			task.Message = "no artifact in response"
			return Result{Task: task}, fmt.Errorf("%w: no artifact in response", ErrTaskFailed)
		}
	}
	task.Status = models.TaskStatusDone

	if len(final.ArtifactData) > 0 {
		return Result{
			Task:        task,
			Data:        final.ArtifactData,
			ContentType: http.DetectContentType(final.ArtifactData),
		}, nil
	}

	data, contentType, err := c.fetch(ctx, final.ArtifactURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Task: task}, ctxErr
		}
		logger.Error().Err(err).Str("url", final.ArtifactURL).Msg("artifact download failed")
		return Result{Task: task}, err
	}

	logger.Info().Int("bytes", len(data)).Int("attempts", task.Attempts).Msg("artifact downloaded")
	return Result{
		Task:        task,
		Data:        data,
		ContentType: contentType,
		SourceURL:   final.ArtifactURL,
	}, nil
}

// poll returns the first terminal observation. Poll transport errors only use
// up an attempt.
func (c *Client) poll(ctx context.Context, logger zerolog.Logger, adapter providers.Adapter, task *models.GenerationTask, job providers.Job, creds providers.Credentials) (providers.PollResult, error) {
	budget := c.pollConfig(job.Kind)
	task.Status = models.TaskStatusRunning

	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		if err := wait(ctx, budget.Interval); err != nil {
			return providers.PollResult{}, err
		}
		task.Attempts = attempt

		res, err := adapter.Poll(ctx, task.TaskID, job, creds)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return providers.PollResult{}, ctxErr
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("poll failed, retrying")
			continue
		}

		logger.Debug().Int("attempt", attempt).Str("status", string(res.Status)).Msg("polled")
		if res.Status == models.TaskStatusDone || res.Status == models.TaskStatusFailed {
			return res, nil
		}
		task.Status = res.Status
	}

	task.Status = models.TaskStatusTimedOut
	logger.Warn().Int("attempts", task.Attempts).Msg("task timed out")
	return providers.PollResult{}, fmt.Errorf("%w after %d attempts", ErrTimedOut, budget.MaxAttempts)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrArtifactDownload, err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrArtifactDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", ErrArtifactDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxArtifactBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrArtifactDownload, err)
	}
	if int64(len(data)) > c.cfg.MaxArtifactBytes {
		return nil, "", fmt.Errorf("%w: artifact exceeds %d bytes", ErrArtifactDownload, c.cfg.MaxArtifactBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body", ErrArtifactDownload)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
