package documentctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"smartassist/src/core/rag"
)

type Document struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	FileName    string     `gorm:"not null" json:"file_name"`
	Title       string     `json:"title"`
	ContentType string     `gorm:"not null" json:"content_type"`
	BlobURL     string     `gorm:"not null;column:blob_url" json:"blob_url"` // bucket name + object name
	ContentHash string     `gorm:"column:content_hash" json:"content_hash"`
	Status      string     `gorm:"not null;default:pending" json:"status"`
	Error       string     `json:"error,omitempty"`
	ChunkCount  int        `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	IndexedAt   *time.Time `json:"indexed_at,omitempty"`
}

type DocumentService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

var _ rag.DocumentStore = (*DocumentService)(nil)

func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	node, err := snowflake.NewNode(1) // Node number 1 for documents
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &DocumentService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *DocumentService) Create(ctx context.Context, doc *rag.Document) error {
	if doc.ID == 0 {
		doc.ID = s.snowflake.Generate().Int64()
	}
	if doc.Status == "" {
		doc.Status = rag.StatusPending
	}

	record := toRecord(doc)
	result := s.db.WithContext(ctx).Create(record)
	if result.Error != nil {
		return fmt.Errorf("failed to create document: %v", result.Error)
	}

	doc.CreatedAt = record.CreatedAt
	doc.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *DocumentService) GetByID(ctx context.Context, id int64) (*rag.Document, error) {
	var record Document
	result := s.db.WithContext(ctx).First(&record, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %v", result.Error)
	}
	return fromRecord(&record), nil
}

func (s *DocumentService) List(ctx context.Context) ([]rag.Document, error) {
	var records []Document
	result := s.db.WithContext(ctx).Order("created_at DESC").Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %v", result.Error)
	}
	return fromRecords(records), nil
}

func (s *DocumentService) ListByStatus(ctx context.Context, status rag.DocumentStatus) ([]rag.Document, error) {
	var records []Document
	result := s.db.WithContext(ctx).Where("status = ?", string(status)).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents by status: %v", result.Error)
	}
	return fromRecords(records), nil
}

func (s *DocumentService) UpdateStatus(ctx context.Context, id int64, status rag.DocumentStatus, errDetail string) error {
	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": string(status),
		"error":  errDetail,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update document status: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %d not found", id)
	}
	return nil
}

func (s *DocumentService) MarkIndexed(ctx context.Context, id int64, chunkCount int, contentHash string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       string(rag.StatusIndexed),
		"error":        "",
		"chunk_count":  chunkCount,
		"content_hash": contentHash,
		"indexed_at":   &now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark document indexed: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %d not found", id)
	}
	return nil
}

func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Document{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %v", result.Error)
	}
	return nil
}

func toRecord(doc *rag.Document) *Document {
	return &Document{
		ID:          doc.ID,
		FileName:    doc.FileName,
		Title:       doc.Title,
		ContentType: doc.ContentType,
		BlobURL:     doc.BlobURL,
		ContentHash: doc.ContentHash,
		Status:      string(doc.Status),
		Error:       doc.Error,
		ChunkCount:  doc.ChunkCount,
		IndexedAt:   doc.IndexedAt,
	}
}

func fromRecord(record *Document) *rag.Document {
	return &rag.Document{
		ID:          record.ID,
		FileName:    record.FileName,
		Title:       record.Title,
		ContentType: record.ContentType,
		BlobURL:     record.BlobURL,
		ContentHash: record.ContentHash,
		Status:      rag.DocumentStatus(record.Status),
		Error:       record.Error,
		ChunkCount:  record.ChunkCount,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
		IndexedAt:   record.IndexedAt,
	}
}

func fromRecords(records []Document) []rag.Document {
	docs := make([]rag.Document, 0, len(records))
	for i := range records {
		docs = append(docs, *fromRecord(&records[i]))
	}
	return docs
}
