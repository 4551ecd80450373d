// Package materializer writes generated artifacts under deterministic,
// self-describing filenames. The catalog package parses those names back, so
// the format here is shared with it.
package materializer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

const (
	// TimestampLayout is ISO-8601 with colons replaced by dashes.
	TimestampLayout = "2006-01-02T15-04-05"

	// maxFilenameBytes is NAME_MAX on common Linux filesystems.
	maxFilenameBytes = 255

	ImagesDir = "generated-images"
	VideosDir = "generated-videos"
)

// Dir returns the directory, relative to the public root, holding mediaType.
func Dir(mediaType models.MediaType) string {
	if mediaType == models.MediaTypeVideo {
		return VideosDir
	}
	return ImagesDir
}

// PublicPath is the URL path under which the static server exposes filename.
func PublicPath(mediaType models.MediaType, filename string) string {
	return "/" + Dir(mediaType) + "/" + filename
}

type Result struct {
	Filename   string
	Path       string
	PublicPath string
	Timestamp  time.Time
}

type Materializer struct {
	publicDir string
	limits    map[models.MediaType]int
	now       func() time.Time
}

func New(publicDir string, imagePromptLimit, videoPromptLimit int) *Materializer {
	return &Materializer{
		publicDir: publicDir,
		limits: map[models.MediaType]int{
			models.MediaTypeImage: imagePromptLimit,
			models.MediaTypeVideo: videoPromptLimit,
		},
		now: time.Now,
	}
}

// WithClock pins the capture instant, for tests.
func (m *Materializer) WithClock(now func() time.Time) *Materializer {
	m.now = now
	return m
}

// Filename builds generated_{type}_{timestamp}_{prompt}.{ext}. The prompt is
// cut to the per-type rune limit and then to whatever fits in
// maxFilenameBytes. Two calls in the same second with the same truncated
// prompt produce the same name.
func (m *Materializer) Filename(mediaType models.MediaType, prompt, ext string, at time.Time) string {
	prefix := fmt.Sprintf("generated_%s_%s_", mediaType, at.UTC().Format(TimestampLayout))
	suffix := "." + strings.TrimPrefix(ext, ".")
	sanitized := SanitizePrompt(prompt, m.limits[mediaType])
	return prefix + truncateBytes(sanitized, maxFilenameBytes-len(prefix)-len(suffix)) + suffix
}

// truncateBytes returns the longest prefix of s that is at most n bytes and
// ends on a rune boundary.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}

func (m *Materializer) Materialize(data []byte, prompt string, mediaType models.MediaType, ext string) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("materialize: empty artifact")
	}

	at := m.now().UTC()
	filename := m.Filename(mediaType, prompt, ext, at)
	dir := filepath.Join(m.publicDir, Dir(mediaType))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create media dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write media file: %w", err)
	}

	return Result{
		Filename:   filename,
		Path:       path,
		PublicPath: PublicPath(mediaType, filename),
		Timestamp:  at.Truncate(time.Second),
	}, nil
}

// SanitizePrompt replaces every rune outside [A-Za-z0-9] and the CJK unified
// ideographs block with '_' and truncates to limit runes. limit <= 0 means no
// truncation.
func SanitizePrompt(prompt string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range prompt {
		if limit > 0 && n >= limit {
			break
		}
		if isKeptRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

func isKeptRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		(r >= 0x4e00 && r <= 0x9fff)
}
