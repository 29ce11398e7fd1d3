package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smartassist/src/core/rag"
	"smartassist/src/log"
)

type DocumentResponse struct {
	ID          string  `json:"id"`
	FileName    string  `json:"fileName"`
	Title       string  `json:"title,omitempty"`
	ContentType string  `json:"contentType"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	ChunkCount  int     `json:"chunkCount"`
	CreatedAt   string  `json:"createdAt"`
	IndexedAt   *string `json:"indexedAt,omitempty"`
}

// UploadDocument handles POST /api/v1/documents. The file is stored, a
// document record created, and an ingest job enqueued; processing happens in
// the background and the document status reports progress.
func (h *Handler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	if !h.extractors.Supported(contentType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error": fmt.Sprintf("unsupported content type %q", contentType),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded file is empty"})
		return
	}

	ctx := c.Request.Context()
	objectName := fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(fileHeader.Filename))
	blobURL, err := h.blobs.Put(ctx, h.bucket, objectName, contentType, data)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	doc := &rag.Document{
		FileName:    fileHeader.Filename,
		Title:       strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename)),
		ContentType: contentType,
		BlobURL:     blobURL,
		Status:      rag.StatusPending,
	}
	if err := h.documents.Create(ctx, doc); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if _, err := h.jobs.EnqueueIngest(ctx, doc.ID); err != nil {
		log.Error(err, "failed to enqueue ingest job", "documentID", doc.ID)
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusAccepted, toDocumentResponse(doc))
}

// ListDocuments handles GET /api/v1/documents
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	items := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		items = append(items, toDocumentResponse(&docs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handler) GetDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document ID"})
		return
	}

	doc, err := h.documents.GetByID(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if doc == nil {
		sendError(c, http.StatusNotFound, rag.ErrDocumentNotFound)
		return
	}

	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// DeleteDocument handles DELETE /api/v1/documents/:id
func (h *Handler) DeleteDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document ID"})
		return
	}

	ctx := c.Request.Context()
	doc, err := h.documents.GetByID(ctx, id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if doc == nil {
		sendError(c, http.StatusNotFound, rag.ErrDocumentNotFound)
		return
	}

	if err := h.orchestrator.DeleteDocument(ctx, id); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	// The uploaded file is removed last; a leftover blob is harmless while a
	// dangling index entry is not.
	if err := h.blobs.Delete(ctx, doc.BlobURL); err != nil {
		log.Error(err, "failed to delete document blob", "documentID", id, "blobURL", doc.BlobURL)
	}

	c.Status(http.StatusNoContent)
}

func toDocumentResponse(doc *rag.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:          strconv.FormatInt(doc.ID, 10),
		FileName:    doc.FileName,
		Title:       doc.Title,
		ContentType: doc.ContentType,
		Status:      string(doc.Status),
		Error:       doc.Error,
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   doc.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if doc.IndexedAt != nil {
		indexed := doc.IndexedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.IndexedAt = &indexed
	}
	return resp
}
