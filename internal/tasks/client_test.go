package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/providers"
)

// scriptedAdapter returns its poll responses in order, then keeps repeating
// the last one.
type scriptedAdapter struct {
	submit    providers.Submission
	submitErr error
	polls     []pollStep
	calls     atomic.Int32
}

type pollStep struct {
	result providers.PollResult
	err    error
}

func (a *scriptedAdapter) Vendor() models.Vendor { return models.VendorVolcengine }

func (a *scriptedAdapter) CheckCredentials(providers.Credentials) error { return nil }

func (a *scriptedAdapter) Submit(context.Context, providers.Job, providers.Credentials) (providers.Submission, error) {
	return a.submit, a.submitErr
}

func (a *scriptedAdapter) Poll(context.Context, string, providers.Job, providers.Credentials) (providers.PollResult, error) {
	n := int(a.calls.Add(1)) - 1
	if n >= len(a.polls) {
		n = len(a.polls) - 1
	}
	return a.polls[n].result, a.polls[n].err
}

func running() pollStep {
	return pollStep{result: providers.PollResult{Status: models.TaskStatusRunning}}
}

func newTestClient(maxAttempts int) *Client {
	poll := config.PollConfig{MaxAttempts: maxAttempts, Interval: time.Millisecond}
	return NewClient(Config{ImagePoll: poll, VideoPoll: poll}, http.DefaultClient, zerolog.Nop())
}

func artifactServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("artifact GET must be unauthenticated")
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var imageJob = providers.Job{Kind: models.TaskKindImage, Prompt: "a cat"}

func TestRunRunningTwiceThenDone(t *testing.T) {
	srv := artifactServer(t, http.StatusOK, "png-bytes")
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls: []pollStep{
			running(),
			running(),
			{result: providers.PollResult{Status: models.TaskStatusDone, ArtifactURL: srv.URL + "/img.png"}},
		},
	}

	res, err := newTestClient(20).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(res.Data) != "png-bytes" || res.ContentType != "image/png" {
		t.Fatalf("result = %q %q", res.Data, res.ContentType)
	}
	if res.Task.TaskID != "T1" || res.Task.Status != models.TaskStatusDone || res.Task.Attempts != 3 {
		t.Fatalf("task = %+v", res.Task)
	}
	if res.Task.ID == "" || res.Task.SubmittedAt.IsZero() {
		t.Fatalf("task missing local id or submit time: %+v", res.Task)
	}
	if res.SourceURL != srv.URL+"/img.png" {
		t.Fatalf("source = %q", res.SourceURL)
	}
}

func TestRunTimesOut(t *testing.T) {
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{running()},
	}

	res, err := newTestClient(4).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if got := adapter.calls.Load(); got != 4 {
		t.Fatalf("polls = %d, want 4", got)
	}
	if res.Task.Status != models.TaskStatusTimedOut || res.Data != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunTransientPollErrorsConsumeAttemptsOnly(t *testing.T) {
	srv := artifactServer(t, http.StatusOK, "ok")
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls: []pollStep{
			{err: &providers.HTTPError{StatusCode: http.StatusBadGateway}},
			{err: errors.New("connection reset")},
			{result: providers.PollResult{Status: models.TaskStatusDone, ArtifactURL: srv.URL}},
		},
	}

	res, err := newTestClient(3).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Task.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Task.Attempts)
	}
}

func TestRunVendorFailure(t *testing.T) {
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{{result: providers.PollResult{Status: models.TaskStatusFailed, Message: "content rejected"}}},
	}

	res, err := newTestClient(5).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("err = %v, want ErrTaskFailed", err)
	}
	if res.Task.Message != "content rejected" {
		t.Fatalf("message = %q", res.Task.Message)
	}
	if got := adapter.calls.Load(); got != 1 {
		t.Fatalf("polls = %d, want 1", got)
	}
}

func TestRunDoneWithoutArtifact(t *testing.T) {
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{{result: providers.PollResult{Status: models.TaskStatusDone}}},
	}

	_, err := newTestClient(5).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("err = %v, want ErrTaskFailed", err)
	}
}

func TestRunSubmitError(t *testing.T) {
	adapter := &scriptedAdapter{submitErr: &providers.HTTPError{StatusCode: 400, Body: `{"code":50400}`}}

	_, err := newTestClient(5).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if !errors.Is(err, ErrSubmit) {
		t.Fatalf("err = %v, want ErrSubmit", err)
	}
	var httpErr *providers.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Body != `{"code":50400}` {
		t.Fatalf("vendor body not attached: %v", err)
	}
	if got := adapter.calls.Load(); got != 0 {
		t.Fatalf("polls = %d, want 0", got)
	}
}

func TestRunArtifactDownloadFailure(t *testing.T) {
	srv := artifactServer(t, http.StatusForbidden, "expired")
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{{result: providers.PollResult{Status: models.TaskStatusDone, ArtifactURL: srv.URL}}},
	}

	_, err := newTestClient(5).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if !errors.Is(err, ErrArtifactDownload) {
		t.Fatalf("err = %v, want ErrArtifactDownload", err)
	}
}

func TestRunArtifactTooLarge(t *testing.T) {
	srv := artifactServer(t, http.StatusOK, "0123456789")
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{{result: providers.PollResult{Status: models.TaskStatusDone, ArtifactURL: srv.URL}}},
	}
	client := NewClient(Config{ImagePoll: config.PollConfig{MaxAttempts: 1}, MaxArtifactBytes: 5}, http.DefaultClient, zerolog.Nop())

	_, err := client.Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if !errors.Is(err, ErrArtifactDownload) {
		t.Fatalf("err = %v, want ErrArtifactDownload", err)
	}
}

func TestRunSynchronousSubmission(t *testing.T) {
	srv := artifactServer(t, http.StatusOK, "sync")
	adapter := &scriptedAdapter{submit: providers.Submission{
		TaskID: "req-1",
		Result: &providers.PollResult{Status: models.TaskStatusDone, ArtifactURL: srv.URL},
	}}

	res, err := newTestClient(5).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(res.Data) != "sync" || adapter.calls.Load() != 0 {
		t.Fatalf("data = %q, polls = %d", res.Data, adapter.calls.Load())
	}
}

func TestRunInlineArtifact(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{{result: providers.PollResult{Status: models.TaskStatusDone, ArtifactData: png}}},
	}

	res, err := newTestClient(5).Run(context.Background(), adapter, imageJob, providers.Credentials{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ContentType != "image/png" || res.SourceURL != "" {
		t.Fatalf("result = %q %q", res.ContentType, res.SourceURL)
	}
}

func TestRunCancelledStopsPolling(t *testing.T) {
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "T1"},
		polls:  []pollStep{running()},
	}
	poll := config.PollConfig{MaxAttempts: 1000, Interval: time.Hour}
	client := NewClient(Config{ImagePoll: poll}, http.DefaultClient, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Run(ctx, adapter, imageJob, providers.Credentials{})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if got := adapter.calls.Load(); got != 0 {
		t.Fatalf("polls = %d, want 0", got)
	}
}

func TestVideoUsesVideoBudget(t *testing.T) {
	adapter := &scriptedAdapter{
		submit: providers.Submission{TaskID: "V1"},
		polls:  []pollStep{running()},
	}
	client := NewClient(Config{
		ImagePoll: config.PollConfig{MaxAttempts: 10, Interval: time.Millisecond},
		VideoPoll: config.PollConfig{MaxAttempts: 2, Interval: time.Millisecond},
	}, http.DefaultClient, zerolog.Nop())

	_, err := client.Run(context.Background(), adapter, providers.Job{Kind: models.TaskKindVideo}, providers.Credentials{})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if got := adapter.calls.Load(); got != 2 {
		t.Fatalf("polls = %d, want 2", got)
	}
}
