package sniffer

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
	FormatMP4  Format = "mp4"
	FormatMOV  Format = "mov"
	FormatWEBM Format = "webm"
)

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Format Format
	Media  models.MediaType
	MIME   string
}

// Extension is the file extension used when the artifact is written to disk.
func (r Result) Extension() string {
	return string(r.Format)
}

var (
	resultJPEG = Result{Format: FormatJPEG, Media: models.MediaTypeImage, MIME: "image/jpeg"}
	resultPNG  = Result{Format: FormatPNG, Media: models.MediaTypeImage, MIME: "image/png"}
	resultWEBP = Result{Format: FormatWEBP, Media: models.MediaTypeImage, MIME: "image/webp"}
	resultMP4  = Result{Format: FormatMP4, Media: models.MediaTypeVideo, MIME: "video/mp4"}
	resultMOV  = Result{Format: FormatMOV, Media: models.MediaTypeVideo, MIME: "video/quicktime"}
	resultWEBM = Result{Format: FormatWEBM, Media: models.MediaTypeVideo, MIME: "video/webm"}
)

func DetectHead(head []byte) (Result, error) {
	switch {
	case len(head) == 0:
		return Result{}, ErrUnknownType
	case isJPEG(head):
		return resultJPEG, nil
	case isPNG(head):
		return resultPNG, nil
	case isWEBP(head):
		return resultWEBP, nil
	case isWEBM(head):
		return resultWEBM, nil
	}

	if brand, ok := ftypBrand(head); ok {
		if brand == "qt  " {
			return resultMOV, nil
		}
		return resultMP4, nil
	}
	return Result{}, ErrUnknownType
}

// Detect sniffs data, falling back to the declared content type and then to
// the default format for kind.
func Detect(data []byte, contentType string, kind models.MediaType) Result {
	if r, err := DetectHead(head(data)); err == nil {
		return r
	}
	if r, ok := fromMIME(contentType); ok && r.Media == kind {
		return r
	}
	if kind == models.MediaTypeVideo {
		return resultMP4
	}
	return resultPNG
}

// Dimensions decodes only the image header. Videos report ok=false.
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}

func fromMIME(contentType string) (Result, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Result{}, false
	}
	for _, r := range []Result{resultJPEG, resultPNG, resultWEBP, resultMP4, resultMOV, resultWEBM} {
		if strings.EqualFold(r.MIME, mediaType) {
			return r, true
		}
	}
	return Result{}, false
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isWEBM(head []byte) bool {
	return len(head) >= 4 && bytes.Equal(head[:4], []byte{0x1a, 0x45, 0xdf, 0xa3})
}

// ftypBrand returns the major brand of an ISO base media file (MP4, MOV).
func ftypBrand(head []byte) (string, bool) {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return "", false
	}
	brand := string(head[8:12])
	if strings.HasPrefix(brand, "avif") || strings.HasPrefix(brand, "heic") {
		return "", false
	}
	return brand, true
}
