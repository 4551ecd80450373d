package materializer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

var fixedTime = time.Date(2025, 1, 9, 8, 8, 31, 250_000_000, time.UTC)

func TestSanitizePrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		limit  int
		want   string
	}{
		{"ascii", "a cat, on a mat!", 0, "a_cat__on_a_mat_"},
		{"cjk kept", "一只猫 in 雪中", 0, "一只猫_in_雪中"},
		{"fullwidth punctuation replaced", "猫。", 0, "猫_"},
		{"emoji is one rune", "hi🙂", 0, "hi_"},
		{"truncated by runes", "一二三四五", 3, "一二三"},
		{"limit longer than prompt", "abc", 50, "abc"},
		{"path separators", "../../etc/passwd", 0, "______etc_passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePrompt(tt.prompt, tt.limit); got != tt.want {
				t.Fatalf("SanitizePrompt(%q, %d) = %q, want %q", tt.prompt, tt.limit, got, tt.want)
			}
		})
	}
}

func TestMaterializeImage(t *testing.T) {
	root := t.TempDir()
	m := New(root, 1000, 50).WithClock(func() time.Time { return fixedTime })

	res, err := m.Materialize([]byte("png-bytes"), "a cat", models.MediaTypeImage, "png")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	wantName := "generated_image_2025-01-09T08-08-31_a_cat.png"
	if res.Filename != wantName {
		t.Fatalf("filename = %q, want %q", res.Filename, wantName)
	}
	if res.PublicPath != "/generated-images/"+wantName {
		t.Fatalf("public path = %q", res.PublicPath)
	}
	if !res.Timestamp.Equal(fixedTime.Truncate(time.Second)) {
		t.Fatalf("timestamp = %v", res.Timestamp)
	}

	data, err := os.ReadFile(filepath.Join(root, ImagesDir, wantName))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("content = %q", data)
	}
}

func TestMaterializeVideoUsesVideoLimit(t *testing.T) {
	root := t.TempDir()
	m := New(root, 1000, 5).WithClock(func() time.Time { return fixedTime })

	res, err := m.Materialize([]byte("mp4"), "a very long prompt", models.MediaTypeVideo, ".mp4")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if res.Filename != "generated_video_2025-01-09T08-08-31_a_ver.mp4" {
		t.Fatalf("filename = %q", res.Filename)
	}
	if _, err := os.Stat(filepath.Join(root, VideosDir, res.Filename)); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestMaterializeLocalClockIsStoredAsUTC(t *testing.T) {
	zone := time.FixedZone("CST", 8*3600)
	m := New(t.TempDir(), 1000, 50).WithClock(func() time.Time { return fixedTime.In(zone) })

	res, err := m.Materialize([]byte("x"), "p", models.MediaTypeImage, "png")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !strings.Contains(res.Filename, "2025-01-09T08-08-31") {
		t.Fatalf("filename %q not in UTC", res.Filename)
	}
}

func TestMaterializeImagePromptLimit(t *testing.T) {
	m := New(t.TempDir(), 1000, 50)
	name := m.Filename(models.MediaTypeImage, strings.Repeat("a", 1200), "png", fixedTime)
	if len(name) > maxFilenameBytes {
		t.Fatalf("filename is %d bytes", len(name))
	}
	prompt := strings.TrimSuffix(strings.TrimPrefix(name, "generated_image_2025-01-09T08-08-31_"), ".png")
	if want := maxFilenameBytes - len("generated_image_2025-01-09T08-08-31_") - len(".png"); len(prompt) != want {
		t.Fatalf("prompt bytes = %d, want %d", len(prompt), want)
	}
}

func TestMaterializeLongPromptsFitFilenameLimit(t *testing.T) {
	tests := []struct {
		name      string
		mediaType models.MediaType
		prompt    string
		ext       string
	}{
		{"ascii image", models.MediaTypeImage, strings.Repeat("a", 300), "png"},
		{"cjk image", models.MediaTypeImage, strings.Repeat("猫", 90), "png"},
		{"cjk image past rune limit", models.MediaTypeImage, strings.Repeat("猫", 1200), "webp"},
		{"cjk video", models.MediaTypeVideo, strings.Repeat("猫", 90), "mp4"},
		{"mixed image", models.MediaTypeImage, strings.Repeat("a猫", 120), "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			m := New(root, 1000, 50).WithClock(func() time.Time { return fixedTime })

			res, err := m.Materialize([]byte("bytes"), tt.prompt, tt.mediaType, tt.ext)
			if err != nil {
				t.Fatalf("Materialize: %v", err)
			}
			if len(res.Filename) > maxFilenameBytes {
				t.Fatalf("filename is %d bytes", len(res.Filename))
			}
			if !utf8.ValidString(res.Filename) {
				t.Fatalf("filename %q is not valid UTF-8", res.Filename)
			}
			if !strings.HasSuffix(res.Filename, "."+tt.ext) {
				t.Fatalf("filename %q lost its extension", res.Filename)
			}
			dir := ImagesDir
			if tt.mediaType == models.MediaTypeVideo {
				dir = VideosDir
			}
			if _, err := os.Stat(filepath.Join(root, dir, res.Filename)); err != nil {
				t.Fatalf("stat: %v", err)
			}
		})
	}
}

func TestTruncateBytes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abc", 2, "ab"},
		{"猫猫", 5, "猫"},
		{"猫猫", 6, "猫猫"},
		{"a猫", 3, "a"},
		{"abc", 0, ""},
		{"abc", -4, ""},
	}
	for _, tt := range tests {
		if got := truncateBytes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateBytes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestMaterializeRejectsEmpty(t *testing.T) {
	m := New(t.TempDir(), 1000, 50)
	if _, err := m.Materialize(nil, "p", models.MediaTypeImage, "png"); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}
