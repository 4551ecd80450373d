package storage

import (
	"testing"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

func TestObjectKey(t *testing.T) {
	if got := ObjectKey(models.MediaTypeImage, "a.png"); got != "generated-images/a.png" {
		t.Fatalf("ObjectKey = %q", got)
	}
	if got := ObjectKey(models.MediaTypeVideo, "b.mp4"); got != "generated-videos/b.mp4" {
		t.Fatalf("ObjectKey = %q", got)
	}
}

func TestNewObjectStoreParsesURLEndpoint(t *testing.T) {
	store, err := NewObjectStore(config.StorageConfig{
		Endpoint:  "https://minio.example.com:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "media",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}
	if got := store.client.EndpointURL(); got.Host != "minio.example.com:9000" || got.Scheme != "https" {
		t.Fatalf("endpoint = %v", got)
	}
}
