package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartassist/src/core/extract"
	"smartassist/src/core/rag"
	"smartassist/src/infrastructure/job"
	"smartassist/src/storage/minioctrl"
)

// Handler exposes the knowledge-base API: document upload and management,
// chat completions, and health.
type Handler struct {
	orchestrator *rag.Orchestrator
	documents    rag.DocumentStore
	extractors   *extract.Registry
	blobs        *minioctrl.BlobService
	jobs         *job.JobService
	bucket       string
	health       []HealthProbe
}

// HealthProbe checks one dependency for the health endpoint.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

func NewHandler(
	orchestrator *rag.Orchestrator,
	documents rag.DocumentStore,
	extractors *extract.Registry,
	blobs *minioctrl.BlobService,
	jobs *job.JobService,
	bucket string,
	health []HealthProbe,
) (*Handler, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if documents == nil {
		return nil, errors.New("document store is required")
	}
	if extractors == nil {
		return nil, errors.New("extractor registry is required")
	}
	if blobs == nil {
		return nil, errors.New("blob service is required")
	}
	if jobs == nil {
		return nil, errors.New("job service is required")
	}
	if bucket == "" {
		bucket = minioctrl.DocumentsBucket
	}

	return &Handler{
		orchestrator: orchestrator,
		documents:    documents,
		extractors:   extractors,
		blobs:        blobs,
		jobs:         jobs,
		bucket:       bucket,
		health:       health,
	}, nil
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Document routes
	v1.POST("/documents", h.UploadDocument)
	v1.GET("/documents", h.ListDocuments)
	v1.GET("/documents/:id", h.GetDocument)
	v1.DELETE("/documents/:id", h.DeleteDocument)

	// Chat routes
	v1.POST("/chat/completions", h.GenerateCompletion)
	v1.GET("/chat/history", h.GetChatHistory)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, rag.ErrDocumentNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupportedFormat):
		code = "UNSUPPORTED_FORMAT"
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, extract.ErrCorruptDocument):
		code = "CORRUPT_DOCUMENT"
		status = http.StatusBadRequest
	default:
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			code = "INTERNAL_ERROR"
		} else {
			code = "BAD_REQUEST"
		}
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}
