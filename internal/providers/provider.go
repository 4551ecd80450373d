// Package providers adapts remote generation vendors to one submit/poll
// contract. Every adapter normalizes its own status vocabulary and response
// shapes before returning, so callers never see vendor-specific fields.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

var (
	ErrUnsupportedKind = errors.New("task kind not supported by vendor")
	ErrMissingTaskID   = errors.New("no task id in submit response")
	ErrCredentials     = errors.New("missing vendor credentials")
	ErrUnknownVendor   = errors.New("unknown vendor")
)

// Credentials carries whichever secret the vendor needs. Adapters ignore the
// fields they do not use.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	APIKey          string
}

// Job is the vendor-neutral description of one generation request.
type Job struct {
	Kind   models.TaskKind
	Prompt string
	// Model optionally overrides the vendor's default model for Kind.
	Model string
	// ImageBase64 is the source frame for image-to-video, without a data: prefix.
	ImageBase64 string
}

// PollResult is one observation of a task, already normalized.
type PollResult struct {
	Status       models.TaskStatus
	ArtifactURL  string
	ArtifactData []byte
	Message      string
}

func (r PollResult) HasArtifact() bool {
	return r.ArtifactURL != "" || len(r.ArtifactData) > 0
}

// Submission is the outcome of a submit call. Result is set when the vendor
// answered synchronously and no polling is needed.
type Submission struct {
	TaskID string
	Result *PollResult
}

type Adapter interface {
	Vendor() models.Vendor
	CheckCredentials(creds Credentials) error
	Submit(ctx context.Context, job Job, creds Credentials) (Submission, error)
	Poll(ctx context.Context, taskID string, job Job, creds Credentials) (PollResult, error)
}

// HTTPError is returned for any non-2xx vendor response. Body is the raw
// response text so the vendor's own diagnostics reach the logs.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("vendor returned status %d: %s", e.StatusCode, e.Body)
}

func ParseVendor(s string) (models.Vendor, error) {
	switch models.Vendor(s) {
	case models.VendorVolcengine, models.VendorDashScope, models.VendorArk:
		return models.Vendor(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVendor, s)
}
