// Package catalog rebuilds media metadata from the generated-media
// directories. Filenames are the only index: type comes from the directory,
// creation time and prompt are parsed from the name, size from stat.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/media/materializer"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

var (
	ErrOutsideDirectory = errors.New("path escapes media directory")
	ErrNotFound         = errors.New("media file not found")
	ErrInvalidFilename  = errors.New("invalid filename")
)

const (
	DefaultPage  = 1
	DefaultLimit = 20

	legacyTimestampLayout = "20060102_150405"
)

var (
	timestampPattern       = regexp.MustCompile(`generated_(?:image|video)_(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2})`)
	legacyTimestampPattern = regexp.MustCompile(`generated_image_(\d{8}_\d{6})`)
	promptPattern          = regexp.MustCompile(`generated_(?:image|video)_[^_]+_(.+)\.[^.]+$`)

	allowedExtensions = map[models.MediaType]map[string]bool{
		models.MediaTypeImage: {".png": true, ".jpg": true, ".jpeg": true, ".webp": true},
		models.MediaTypeVideo: {".mp4": true, ".webm": true, ".mov": true},
	}

	// deleteExtensions are tried, in order, when a delete names a file
	// without its extension.
	deleteExtensions = map[models.MediaType][]string{
		models.MediaTypeImage: {".png", ".jpg", ".jpeg"},
		models.MediaTypeVideo: {".mp4", ".mov", ".avi"},
	}
)

// Page is one slice of a sorted scan.
type Page struct {
	Data       []models.MediaFile
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

type Catalog struct {
	publicDir string
}

func New(publicDir string) *Catalog {
	return &Catalog{publicDir: publicDir}
}

func (c *Catalog) dir(mediaType models.MediaType) string {
	return filepath.Join(c.publicDir, materializer.Dir(mediaType))
}

func typesFor(filter models.MediaType) []models.MediaType {
	if filter == "" {
		return []models.MediaType{models.MediaTypeImage, models.MediaTypeVideo}
	}
	return []models.MediaType{filter}
}

// Scan lists files of the given type, or of both types when filter is empty,
// newest first. Missing directories contribute nothing.
func (c *Catalog) Scan(ctx context.Context, filter models.MediaType) ([]models.MediaFile, error) {
	var files []models.MediaFile
	for _, mediaType := range typesFor(filter) {
		found, err := c.scanDir(ctx, mediaType)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].Timestamp.Equal(files[j].Timestamp) {
			return files[i].Timestamp.After(files[j].Timestamp)
		}
		return files[i].Filename < files[j].Filename
	})
	return files, nil
}

func (c *Catalog) scanDir(ctx context.Context, mediaType models.MediaType) ([]models.MediaFile, error) {
	entries, err := os.ReadDir(c.dir(mediaType))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s directory: %w", mediaType, err)
	}

	files := make([]models.MediaFile, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !allowedExtensions[mediaType][strings.ToLower(filepath.Ext(name))] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, describe(mediaType, name, info))
	}
	return files, nil
}

func describe(mediaType models.MediaType, name string, info fs.FileInfo) models.MediaFile {
	ts, ok := ParseTimestamp(name)
	if !ok {
		ts = info.ModTime().UTC()
	}
	return models.MediaFile{
		ID:        mediaType.IDPrefix() + name,
		Type:      mediaType,
		URL:       materializer.PublicPath(mediaType, name),
		Filename:  name,
		Timestamp: ts,
		Prompt:    ParsePrompt(name),
		SizeBytes: info.Size(),
	}
}

// ParseTimestamp reads the UTC capture time embedded in a generated filename.
// Older image files used a compact YYYYMMDD_HHMMSS stamp, which is also read.
func ParseTimestamp(filename string) (time.Time, bool) {
	if m := timestampPattern.FindStringSubmatch(filename); m != nil {
		if ts, err := time.ParseInLocation(materializer.TimestampLayout, m[1], time.UTC); err == nil {
			return ts, true
		}
	}
	if m := legacyTimestampPattern.FindStringSubmatch(filename); m != nil {
		if ts, err := time.ParseInLocation(legacyTimestampLayout, m[1], time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParsePrompt recovers the sanitized prompt with '_' turned back into spaces.
// Punctuation lost during sanitizing is not recoverable.
func ParsePrompt(filename string) string {
	m := promptPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], "_", " ")
}

// List pages through Scan. page < 1 becomes 1 and limit < 1 becomes 20.
func (c *Catalog) List(ctx context.Context, filter models.MediaType, page, limit int) (Page, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	files, err := c.Scan(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	total := len(files)
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}

	// page and limit come from query strings; avoid overflowing either product
	start, end := total, total
	if page-1 < totalPages {
		start = (page - 1) * limit
		end = start + min(limit, total-start)
	}

	return Page{
		Data:       files[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// resolve joins filename onto the type directory and rejects anything whose
// absolute path is not strictly inside it.
func (c *Catalog) resolve(mediaType models.MediaType, filename string) (string, error) {
	if strings.TrimSpace(filename) == "" || strings.ContainsRune(filename, 0) {
		return "", ErrInvalidFilename
	}

	dir, err := filepath.Abs(c.dir(mediaType))
	if err != nil {
		return "", fmt.Errorf("resolve media dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("resolve media path: %w", err)
	}

	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDirectory, filename)
	}
	return path, nil
}

func isRegularFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the first existing regular file among filename and filename
// with each of the type's common extensions appended. It reports false, not
// an error, when none exists. Every candidate is confined before any removal.
func (c *Catalog) Delete(ctx context.Context, filename string, mediaType models.MediaType) (bool, error) {
	removed, err := c.Remove(ctx, filename, mediaType)
	return removed != "", err
}

// Remove is Delete that also reports the name of the file it removed, or ""
// when nothing matched.
func (c *Catalog) Remove(ctx context.Context, filename string, mediaType models.MediaType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	names := []string{filename}
	for _, ext := range deleteExtensions[mediaType] {
		names = append(names, filename+ext)
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path, err := c.resolve(mediaType, name)
		if err != nil {
			return "", err
		}
		paths = append(paths, path)
	}

	for i, path := range paths {
		if !isRegularFile(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("remove media file: %w", err)
		}
		return names[i], nil
	}
	return "", nil
}

// DeleteExact removes exactly filename, with no extension guessing.
func (c *Catalog) DeleteExact(ctx context.Context, filename string, mediaType models.MediaType) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := c.resolve(mediaType, filename)
	if err != nil {
		return err
	}
	if !isRegularFile(path) {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

// ReadFile returns the contents of filename, confined to the type directory.
func (c *Catalog) ReadFile(filename string, mediaType models.MediaType) ([]byte, error) {
	path, err := c.resolve(mediaType, filename)
	if err != nil {
		return nil, err
	}
	if !isRegularFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return nil, fmt.Errorf("read media file: %w", err)
	}
	return data, nil
}

// Sweep removes every catalog file whose timestamp is before cutoff and
// returns what it removed. Files that vanish mid-sweep are skipped.
func (c *Catalog) Sweep(ctx context.Context, cutoff time.Time) ([]models.MediaFile, error) {
	files, err := c.Scan(ctx, "")
	if err != nil {
		return nil, err
	}

	var removed []models.MediaFile
	for _, f := range files {
		if !f.Timestamp.Before(cutoff) {
			continue
		}
		if err := c.DeleteExact(ctx, f.Filename, f.Type); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed = append(removed, f)
	}
	return removed, nil
}
