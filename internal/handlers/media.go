package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
)

type mediaItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"file_path"`
	Prompt    string    `json:"prompt"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"created_at"`
}

type listData struct {
	Data       []mediaItem `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

func (h HandlerSet) ListMedia(c *gin.Context) {
	mediaType, err := service.ParseType(c.Query("type"), true)
	if err != nil {
		h.fail(c, err, "list media")
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.media.List(c.Request.Context(), mediaType, page, limit)
	if err != nil {
		h.fail(c, err, "list media")
		return
	}

	items := make([]mediaItem, 0, len(result.Data))
	for _, f := range result.Data {
		items = append(items, mediaItem{
			ID:        f.ID,
			Type:      string(f.Type),
			Filename:  f.Filename,
			FilePath:  f.URL,
			Prompt:    f.Prompt,
			SizeBytes: f.SizeBytes,
			CreatedAt: f.Timestamp,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": listData{
			Data:       items,
			Total:      result.Total,
			Page:       result.Page,
			Limit:      result.Limit,
			TotalPages: result.TotalPages,
		},
	})
}

func (h HandlerSet) DeleteMedia(c *gin.Context) {
	mediaType, err := service.ParseType(c.Query("type"), false)
	if err != nil {
		h.fail(c, err, "delete media")
		return
	}

	deleted, err := h.media.Delete(c.Request.Context(), c.Query("id"), mediaType)
	if err != nil {
		h.fail(c, err, "delete media")
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "file deleted"})
}

func (h HandlerSet) ScanGenerated(c *gin.Context) {
	files, err := h.media.Scan(c.Request.Context(), "")
	if err != nil {
		h.fail(c, err, "scan generated media")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "files": files})
}

type deleteGeneratedRequest struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
}

func (h HandlerSet) DeleteGenerated(c *gin.Context) {
	var req deleteGeneratedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	mediaType, err := service.ParseType(req.Type, false)
	if err != nil {
		h.fail(c, err, "delete generated media")
		return
	}

	if err := h.media.DeleteExact(c.Request.Context(), req.Filename, mediaType); err != nil {
		h.fail(c, err, "delete generated media")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "file deleted"})
}
