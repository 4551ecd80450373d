package models

import "time"

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

func ParseMediaType(s string) (MediaType, bool) {
	switch MediaType(s) {
	case MediaTypeImage:
		return MediaTypeImage, true
	case MediaTypeVideo:
		return MediaTypeVideo, true
	}
	return "", false
}

// IDPrefix is prepended to a filename to form the catalog identifier.
func (t MediaType) IDPrefix() string {
	if t == MediaTypeVideo {
		return "vid-"
	}
	return "img-"
}

// MediaFile is reconstructed from a filename and its stat data. The filename
// is the identity; nothing else is stored.
type MediaFile struct {
	ID        string    `json:"id"`
	Type      MediaType `json:"type"`
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt,omitempty"`
	SizeBytes int64     `json:"sizeBytes"`
}
