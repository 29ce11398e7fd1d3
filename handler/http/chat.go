package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type CompletionRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message" binding:"required"`
}

type ChatMessageResponse struct {
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// GenerateCompletion handles POST /api/v1/chat/completions. The response is
// always well formed: backend outages show up as unavailable=true with a
// fallback answer, not as an error status.
func (h *Handler) GenerateCompletion(c *gin.Context) {
	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result, err := h.orchestrator.Answer(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetChatHistory handles GET /api/v1/chat/history?sessionId=...
func (h *Handler) GetChatHistory(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId query parameter is required"})
		return
	}

	messages, err := h.orchestrator.History(c.Request.Context(), sessionID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	items := make([]ChatMessageResponse, 0, len(messages))
	for _, m := range messages {
		items = append(items, ChatMessageResponse{
			MessageID: m.MessageID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"items":     items,
		"count":     len(items),
	})
}
