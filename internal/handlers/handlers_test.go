package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/catalog"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/materializer"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/providers"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/tasks"
)

// fakeVendor reports the given status on every poll. A done status carries
// an inline artifact.
type fakeVendor struct {
	status models.TaskStatus
}

func (f fakeVendor) Vendor() models.Vendor { return models.VendorVolcengine }

func (f fakeVendor) CheckCredentials(c providers.Credentials) error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return providers.ErrCredentials
	}
	return nil
}

func (f fakeVendor) Submit(context.Context, providers.Job, providers.Credentials) (providers.Submission, error) {
	return providers.Submission{TaskID: "T1"}, nil
}

func (f fakeVendor) Poll(context.Context, string, providers.Job, providers.Credentials) (providers.PollResult, error) {
	result := providers.PollResult{Status: f.status}
	if f.status == models.TaskStatusDone {
		result.ArtifactData = []byte("\x89PNG\r\n\x1a\nrest")
	}
	return result, nil
}

func newTestRouter(t *testing.T, publicDir string, vendor fakeVendor) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	poll := config.PollConfig{MaxAttempts: 3, Interval: time.Millisecond}
	cfg := &config.AppConfig{
		Environment: "test",
		Generation: config.GenerationConfig{
			ImageVendor: "volcengine",
			VideoVendor: "volcengine",
			ImagePoll:   poll,
			VideoPoll:   poll,
		},
		Credentials: config.CredentialsConfig{
			Volcengine: config.VolcengineCredentials{
				Image: config.KeyPair{AccessKey: "ak", SecretKey: "sk"},
			},
		},
	}
	log := zerolog.Nop()
	runner := tasks.NewClient(tasks.Config{ImagePoll: poll, VideoPoll: poll}, http.DefaultClient, log)
	generation := service.NewGenerationService(cfg, providers.NewRegistry(vendor), runner,
		materializer.New(publicDir, 1000, 50), nil, nil, log)
	media := service.NewMediaService(catalog.New(publicDir), nil, nil, log)

	engine := gin.New()
	NewHandlerSet(log, cfg, generation, media, nil, nil).Register(engine.Group("/api"))
	return engine
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func seed(t *testing.T, dir, sub string, names ...string) {
	t.Helper()
	full := filepath.Join(dir, sub)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(full, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGenerateImagesWritesFile(t *testing.T) {
	dir := t.TempDir()
	engine := newTestRouter(t, dir, fakeVendor{status: models.TaskStatusDone})

	rec := do(t, engine, http.MethodPost, "/api/generate-images", map[string]string{"prompt": "a cat"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	images, _ := body["images"].([]any)
	if body["success"] != true || len(images) != 1 {
		t.Fatalf("body = %v", body)
	}
	image := images[0].(map[string]any)
	url, _ := image["url"].(string)
	if !strings.HasPrefix(url, "/generated-images/generated_image_") || !strings.HasSuffix(url, "_a_cat.png") {
		t.Fatalf("url = %q", url)
	}
	if image["imageBytes"] == "" || image["prompt"] != "a cat" {
		t.Fatalf("image = %v", image)
	}
	if _, err := os.Stat(filepath.Join(dir, strings.TrimPrefix(url, "/"))); err != nil {
		t.Fatalf("file not written: %v", err)
	}
}

func TestGenerateErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		vendor fakeVendor
		path   string
		body   map[string]string
		want   int
	}{
		{"missing prompt", fakeVendor{status: models.TaskStatusDone}, "/api/generate-images", map[string]string{}, http.StatusBadRequest},
		{"missing image", fakeVendor{status: models.TaskStatusDone}, "/api/image-to-video", map[string]string{"prompt": "x", "accessKey": "a", "secretKey": "b"}, http.StatusBadRequest},
		{"missing credentials", fakeVendor{status: models.TaskStatusDone}, "/api/generate-videos", map[string]string{"prompt": "waves"}, http.StatusUnauthorized},
		{"never terminal", fakeVendor{status: models.TaskStatusRunning}, "/api/generate-images", map[string]string{"prompt": "x"}, http.StatusInternalServerError},
		{"vendor failure", fakeVendor{status: models.TaskStatusFailed}, "/api/generate-images", map[string]string{"prompt": "x"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			engine := newTestRouter(t, dir, tc.vendor)
			rec := do(t, engine, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if decode(t, rec)["error"] == "" {
				t.Fatal("missing error message")
			}
			if entries, _ := os.ReadDir(filepath.Join(dir, "generated-images")); len(entries) != 0 {
				t.Fatalf("failed generation wrote %d files", len(entries))
			}
		})
	}
}

func TestListMediaPaginates(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, "generated-images",
		"generated_image_2025-01-01T00-00-00_a.png",
		"generated_image_2025-01-02T00-00-00_b.png",
		"generated_image_2025-01-03T00-00-00_c.png",
	)
	engine := newTestRouter(t, dir, fakeVendor{})

	rec := do(t, engine, http.MethodGet, "/api/media/list?type=image&page=2&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := decode(t, rec)["data"].(map[string]any)
	items := data["data"].([]any)
	if data["total"] != float64(3) || data["totalPages"] != float64(2) || len(items) != 1 {
		t.Fatalf("data = %v", data)
	}
	if items[0].(map[string]any)["prompt"] != "a" {
		t.Fatalf("oldest item should be last: %v", items[0])
	}

	if rec := do(t, engine, http.MethodGet, "/api/media/list?type=audio", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad type status = %d", rec.Code)
	}
}

func TestDeleteMedia(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, "generated-videos", "clip.mp4")
	engine := newTestRouter(t, dir, fakeVendor{})

	if rec := do(t, engine, http.MethodDelete, "/api/media/delete?id=foo.png&type=image", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing file status = %d", rec.Code)
	}
	if rec := do(t, engine, http.MethodDelete, "/api/media/delete?id=clip&type=video", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, engine, http.MethodDelete, "/api/media/delete?id=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing type status = %d", rec.Code)
	}
}

func TestDeleteGenerated(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, "generated-images", "a.png")
	engine := newTestRouter(t, dir, fakeVendor{})

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"traversal", map[string]string{"filename": "../../etc/passwd", "type": "image"}, http.StatusBadRequest},
		{"missing filename", map[string]string{"type": "image"}, http.StatusBadRequest},
		{"not found", map[string]string{"filename": "b.png", "type": "image"}, http.StatusNotFound},
		{"deleted", map[string]string{"filename": "a.png", "type": "image"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, engine, http.MethodDelete, "/api/delete-generated", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestScanGenerated(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, "generated-images", "generated_image_2025-01-01T00-00-00_a.png")
	seed(t, dir, "generated-videos", "generated_video_2025-01-02T00-00-00_b.mp4", "notes.txt")
	engine := newTestRouter(t, dir, fakeVendor{})

	rec := do(t, engine, http.MethodGet, "/api/scan-generated", nil)
	files := decode(t, rec)["files"].([]any)
	if len(files) != 2 || files[0].(map[string]any)["type"] != "video" {
		t.Fatalf("files = %v", files)
	}
}

func TestHealthReportsDisabledBackends(t *testing.T) {
	engine := newTestRouter(t, t.TempDir(), fakeVendor{})
	body := decode(t, do(t, engine, http.MethodGet, "/api/healthz", nil))
	if body["status"] != "ok" || body["cache"] != "disabled" || body["storage"] != "disabled" || body["environment"] != "test" {
		t.Fatalf("health = %v", body)
	}
}
