package chunkctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smartassist/src/core/rag"
)

type Chunk struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	DocumentID int64     `gorm:"not null;index" json:"document_id"`
	Seq        int       `gorm:"not null;column:chunk_seq" json:"seq"`
	StartRune  int       `gorm:"not null" json:"start_rune"`
	EndRune    int       `gorm:"not null" json:"end_rune"`
	Text       string    `gorm:"not null;type:text" json:"text"`
	Embedding  []byte    `gorm:"type:jsonb" json:"-"` // JSON-encoded []float32
	CreatedAt  time.Time `json:"created_at"`
}

type ChunkService struct {
	db *gorm.DB
}

var _ rag.ChunkStore = (*ChunkService)(nil)

func NewChunkService(db *gorm.DB) (*ChunkService, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &ChunkService{db: db}, nil
}

// ReplaceForDocument swaps the document's chunk set in one transaction:
// delete everything, insert the replacement rows. A reader never sees a mix
// of old and new chunks.
func (s *ChunkService) ReplaceForDocument(ctx context.Context, documentID int64, chunks []rag.Chunk) error {
	records := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		embedding, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for chunk %d: %v", c.ID, err)
		}
		records = append(records, Chunk{
			ID:         c.ID,
			DocumentID: documentID,
			Seq:        c.Seq,
			StartRune:  c.Start,
			EndRune:    c.End,
			Text:       c.Text,
			Embedding:  embedding,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete old chunks: %v", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("failed to insert chunks: %v", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace chunks for document %d: %w", documentID, err)
	}
	return nil
}

func (s *ChunkService) GetByDocumentID(ctx context.Context, documentID int64) ([]rag.Chunk, error) {
	var records []Chunk
	result := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_seq ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %v", result.Error)
	}

	chunks := make([]rag.Chunk, 0, len(records))
	for _, r := range records {
		var embedding []float32
		if len(r.Embedding) > 0 {
			if err := json.Unmarshal(r.Embedding, &embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for chunk %d: %v", r.ID, err)
			}
		}
		chunks = append(chunks, rag.Chunk{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			Seq:        r.Seq,
			Start:      r.StartRune,
			End:        r.EndRune,
			Text:       r.Text,
			Embedding:  embedding,
			CreatedAt:  r.CreatedAt,
		})
	}
	return chunks, nil
}

func (s *ChunkService) DeleteByDocumentID(ctx context.Context, documentID int64) error {
	result := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&Chunk{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chunks: %v", result.Error)
	}
	return nil
}
