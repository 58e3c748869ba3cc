package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"firecost/internal/auth"
	"firecost/internal/backend"
	"firecost/internal/documents"
	"firecost/internal/service/llm"
	"firecost/internal/session"
	"firecost/internal/worker"
)

// Handler wires HTTP routes to the session store, document pipeline and
// backend proxy.
type Handler struct {
	sessions  *session.Store
	documents *documents.Service
	projects  *backend.Client
	auth      *auth.Service
	workers   *worker.Dispatcher
	log       *zap.Logger
}

// NewHandler constructs a Handler instance. documents and projects may be nil
// when the corresponding dependency is not configured; a nil dispatcher runs
// extraction inline.
func NewHandler(sessions *session.Store, docs *documents.Service, projects *backend.Client, authService *auth.Service, workers *worker.Dispatcher, logger *zap.Logger) *Handler {
	if authService == nil {
		authService = auth.NewService("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:  sessions,
		documents: docs,
		projects:  projects,
		auth:      authService,
		workers:   workers,
		log:       logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if h.documents != nil {
		router.Static(h.documents.PublicBasePath(), h.documents.Dir())
	}

	api := router.Group("/api")
	api.Use(h.auth.Middleware())
	api.GET("/health", h.health)

	api.POST("/documents/upload", h.uploadDocument)
	api.POST("/documents/process", h.processDocument)

	api.POST("/project-session", h.createSession)
	api.PUT("/project-session", h.updateSession)
	api.GET("/project-session", h.getSession)
	api.DELETE("/project-session", h.deleteSession)
	api.GET("/project-session/health", h.sessionHealth)
	api.GET("/project-session/:id", h.getSession)
	api.DELETE("/project-session/:id", h.deleteSession)

	api.POST("/projects", h.createProject)
	api.GET("/projects", h.listProjects)
	api.GET("/projects/:id", h.getProject)
	api.DELETE("/projects/:id", h.deleteProject)
	api.POST("/estimations", h.createEstimation)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		llmErr     *llm.UpstreamError
		backendErr *backend.UpstreamError
	)
	switch {
	case errors.Is(err, worker.ErrBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errors.Is(err, backend.ErrValidation), errors.Is(err, session.ErrInvalid), errors.Is(err, documents.ErrNoText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, documents.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, session.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "session expired"})
	case errors.Is(err, session.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, documents.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, documents.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.As(err, &llmErr):
		h.log.Warn("llm upstream failure", zap.Error(err), zap.String("body", llmErr.Body))
		c.JSON(http.StatusBadGateway, gin.H{"error": "document analysis failed", "details": firstNonEmpty(llmErr.Body, llmErr.Error())})
	case errors.As(err, &backendErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable", "details": backendErr.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "details": err.Error()})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
