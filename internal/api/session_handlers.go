package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"firecost/internal/session"
)

type createSessionRequest struct {
	ProjectData map[string]interface{} `json:"projectData"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	se, err := h.sessions.Create(c.Request.Context(), req.ProjectData)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"sessionId": se.SessionID,
		"createdAt": se.CreatedAt,
		"expiresAt": se.ExpiresAt,
	})
}

type updateSessionRequest struct {
	SessionID        string                 `json:"sessionId"`
	ProjectData      map[string]interface{} `json:"projectData"`
	CurrentStep      *int                   `json:"currentStep"`
	CompletedSteps   []int                  `json:"completedSteps"`
	ValidationStatus map[string]bool        `json:"validationStatus"`
	ExpectedVersion  *int64                 `json:"expectedVersion"`
}

func (h *Handler) updateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	se, err := h.sessions.Update(c.Request.Context(), id, session.Patch{
		ProjectData:      req.ProjectData,
		CurrentStep:      req.CurrentStep,
		CompletedSteps:   req.CompletedSteps,
		ValidationStatus: req.ValidationStatus,
		ExpectedVersion:  req.ExpectedVersion,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": se})
}

// sessionIDParam accepts the id from the path or the sessionId query value.
func sessionIDParam(c *gin.Context) string {
	if id := strings.TrimSpace(c.Param("id")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("sessionId"))
}

func (h *Handler) getSession(c *gin.Context) {
	id := sessionIDParam(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	se, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": se})
}

func (h *Handler) deleteSession(c *gin.Context) {
	id := sessionIDParam(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	existed, err := h.sessions.Delete(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !existed {
		h.respondError(c, session.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) sessionHealth(c *gin.Context) {
	health := h.sessions.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
