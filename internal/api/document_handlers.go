package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"firecost/internal/documents"
)

// multipart framing allowance on top of the file limit
const uploadOverhead = 1 << 20

func (h *Handler) uploadDocument(c *gin.Context) {
	if h.documents == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document storage not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, documents.MaxUploadBytes+uploadOverhead)
	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(c, documents.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer src.Close()

	stored, err := h.documents.Upload(c.Request.Context(), src, file.Filename, file.Header.Get("Content-Type"), file.Size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"file":         stored,
		"uploadedFile": stored.AsUploadedFile(),
	})
}

type processRequest struct {
	FileID      string `json:"fileId"`
	FileURL     string `json:"fileUrl"`
	StoredName  string `json:"storedName"`
	ProjectType string `json:"projectType"`
}

func (h *Handler) processDocument(c *gin.Context) {
	if h.documents == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document storage not configured"})
		return
	}
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ref := strings.TrimSpace(firstNonEmpty(req.FileID, req.StoredName, req.FileURL))
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileId, storedName or fileUrl is required"})
		return
	}
	var res *documents.ProcessResult
	err := h.runExtraction(c, func(ctx context.Context) error {
		var perr error
		res, perr = h.documents.Process(ctx, ref, strings.TrimSpace(req.ProjectType))
		return perr
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"analysis": res.Analysis,
		"fileInfo": res.FileInfo,
	})
}

// runExtraction queues fn on the dispatcher, keyed by caller so one client
// cannot monopolize the model.
func (h *Handler) runExtraction(c *gin.Context, fn func(ctx context.Context) error) error {
	if h.workers == nil {
		return fn(c.Request.Context())
	}
	key := callerToken(c)
	if key == "" {
		key = c.ClientIP()
	}
	var taskErr error
	if err := h.workers.Do(c.Request.Context(), key, func(ctx context.Context) {
		taskErr = fn(ctx)
	}); err != nil {
		return err
	}
	return taskErr
}
