package chatctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"smartassist/src/core/rag"
)

type ChatMessage struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	MessageID string    `gorm:"not null;uniqueIndex" json:"message_id"`
	SessionID string    `gorm:"not null;index" json:"session_id"`
	Role      string    `gorm:"not null" json:"role"`
	Content   string    `gorm:"not null;type:text" json:"content"`
	Citations []byte    `gorm:"type:jsonb" json:"-"` // JSON-encoded []rag.Citation
	CreatedAt time.Time `json:"created_at"`
}

type ChatService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

var _ rag.ChatStore = (*ChatService)(nil)

func NewChatService(db *gorm.DB) (*ChatService, error) {
	node, err := snowflake.NewNode(3) // Node number 3 for chat messages
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ChatService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *ChatService) SaveMessage(ctx context.Context, msg *rag.ChatMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	var citations []byte
	if len(msg.Citations) > 0 {
		encoded, err := json.Marshal(msg.Citations)
		if err != nil {
			return fmt.Errorf("failed to encode citations: %v", err)
		}
		citations = encoded
	}

	record := &ChatMessage{
		ID:        s.snowflake.Generate().Int64(),
		MessageID: msg.MessageID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Citations: citations,
	}
	result := s.db.WithContext(ctx).Create(record)
	if result.Error != nil {
		return fmt.Errorf("failed to save chat message: %v", result.Error)
	}

	msg.ID = record.ID
	msg.CreatedAt = record.CreatedAt
	return nil
}

func (s *ChatService) ListBySession(ctx context.Context, sessionID string) ([]rag.ChatMessage, error) {
	var records []ChatMessage
	result := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list chat messages: %v", result.Error)
	}

	messages := make([]rag.ChatMessage, 0, len(records))
	for _, r := range records {
		var citations []rag.Citation
		if len(r.Citations) > 0 {
			if err := json.Unmarshal(r.Citations, &citations); err != nil {
				return nil, fmt.Errorf("failed to decode citations for message %s: %v", r.MessageID, err)
			}
		}
		messages = append(messages, rag.ChatMessage{
			ID:        r.ID,
			MessageID: r.MessageID,
			SessionID: r.SessionID,
			Role:      r.Role,
			Content:   r.Content,
			Citations: citations,
			CreatedAt: r.CreatedAt,
		})
	}
	return messages, nil
}
