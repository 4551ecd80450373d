package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
)

type generateRequest struct {
	Prompt     string `json:"prompt"`
	ImageBytes string `json:"imageBytes"`
	AccessKey  string `json:"accessKey"`
	SecretKey  string `json:"secretKey"`
	APIKey     string `json:"apiKey"`
	Vendor     string `json:"vendor"`
	Model      string `json:"model"`
}

type imageResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	ImageBytes string    `json:"imageBytes"`
	Prompt     string    `json:"prompt"`
	CreatedAt  time.Time `json:"created_at"`
}

type videoResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

func (h HandlerSet) GenerateImages(c *gin.Context) {
	media, ok := h.generate(c, models.TaskKindImage)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"images": []imageResponse{{
			ID:         media.ID,
			URL:        media.URL,
			ImageBytes: media.ImageBytes,
			Prompt:     media.Prompt,
			CreatedAt:  media.CreatedAt,
		}},
		"prompt": media.Prompt,
	})
}

func (h HandlerSet) GenerateVideos(c *gin.Context) {
	h.respondVideo(c, models.TaskKindVideo)
}

func (h HandlerSet) ImageToVideo(c *gin.Context) {
	h.respondVideo(c, models.TaskKindImageToVideo)
}

func (h HandlerSet) respondVideo(c *gin.Context, kind models.TaskKind) {
	media, ok := h.generate(c, kind)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"videos": []videoResponse{{
			ID:        media.ID,
			URL:       media.URL,
			Prompt:    media.Prompt,
			CreatedAt: media.CreatedAt,
		}},
		"prompt": media.Prompt,
	})
}

// generate binds the body and runs the job on the request context, so a
// client disconnect stops polling.
func (h HandlerSet) generate(c *gin.Context, kind models.TaskKind) (service.GeneratedMedia, bool) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return service.GeneratedMedia{}, false
	}

	media, err := h.generation.Generate(c.Request.Context(), service.GenerateInput{
		Kind:      kind,
		Prompt:    req.Prompt,
		Image:     req.ImageBytes,
		Vendor:    req.Vendor,
		Model:     req.Model,
		AccessKey: req.AccessKey,
		SecretKey: req.SecretKey,
		APIKey:    req.APIKey,
	})
	if err != nil {
		h.fail(c, err, "generation failed")
		return service.GeneratedMedia{}, false
	}
	return media, true
}
