package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"firecost/internal/auth"
	"firecost/internal/backend"
)

func (h *Handler) requireProjects(c *gin.Context) bool {
	if h.projects == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend api not configured"})
		return false
	}
	return true
}

// relay writes the downstream status and body back unchanged.
func relay(c *gin.Context, resp *backend.Response) {
	if len(resp.Body) == 0 {
		c.Status(resp.Status)
		return
	}
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
}

func callerToken(c *gin.Context) string {
	token, _ := auth.AuthTokenFromContext(c)
	return token
}

func (h *Handler) createProject(c *gin.Context) {
	if !h.requireProjects(c) {
		return
	}
	var req backend.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	resp, err := h.projects.CreateProject(c.Request.Context(), callerToken(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	relay(c, resp)
}

func (h *Handler) listProjects(c *gin.Context) {
	if !h.requireProjects(c) {
		return
	}
	resp, err := h.projects.ListProjects(c.Request.Context(), callerToken(c), c.Request.URL.Query())
	if err != nil {
		h.respondError(c, err)
		return
	}
	relay(c, resp)
}

func (h *Handler) getProject(c *gin.Context) {
	if !h.requireProjects(c) {
		return
	}
	resp, err := h.projects.GetProject(c.Request.Context(), callerToken(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	relay(c, resp)
}

func (h *Handler) deleteProject(c *gin.Context) {
	if !h.requireProjects(c) {
		return
	}
	resp, err := h.projects.DeleteProject(c.Request.Context(), callerToken(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	relay(c, resp)
}

func (h *Handler) createEstimation(c *gin.Context) {
	if !h.requireProjects(c) {
		return
	}
	var req backend.EstimationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	resp, err := h.projects.CreateEstimation(c.Request.Context(), callerToken(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	relay(c, resp)
}
