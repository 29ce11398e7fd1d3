// Package rag implements the ingestion and answering pipeline over the
// knowledge base: documents are extracted, chunked, embedded and indexed, and
// questions are answered from the most similar indexed chunks.
package rag

import (
	"context"
	"errors"
	"time"
)

// DocumentStatus tracks where a document sits in the ingestion pipeline.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusExtracting DocumentStatus = "extracting"
	StatusChunking   DocumentStatus = "chunking"
	StatusEmbedding  DocumentStatus = "embedding"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

var (
	// ErrEmbeddingUnavailable means the embedding backend could not be
	// reached or answered with a transient failure. Callers may retry.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrEmbeddingMalformed means the embedding backend answered but the
	// response is unusable. Retrying will not help.
	ErrEmbeddingMalformed = errors.New("embedding response malformed")
	// ErrGenerationUnavailable means the generation backend failed; answering
	// degrades instead of erroring.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	// ErrDocumentNotFound means the referenced document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// Document is an uploaded file tracked through ingestion.
type Document struct {
	ID          int64
	FileName    string
	Title       string
	ContentType string
	BlobURL     string
	ContentHash string
	Status      DocumentStatus
	Error       string
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IndexedAt   *time.Time
}

// Chunk is one indexed piece of a document. Start and End are rune offsets
// into the extracted text.
type Chunk struct {
	ID         int64
	DocumentID int64
	Seq        int
	Start      int
	End        int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// Citation points an answer back at the chunk it drew from.
type Citation struct {
	DocumentID int64   `json:"documentId"`
	ChunkID    int64   `json:"chunkId"`
	Score      float64 `json:"score"`
}

// AnswerResult is what Answer returns. It is always well formed: when a
// backend is down, Unavailable is set and Answer carries a fallback message
// instead of an error surfacing to the caller.
type AnswerResult struct {
	SessionID   string     `json:"sessionId"`
	MessageID   string     `json:"messageId"`
	Answer      string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	Unavailable bool       `json:"unavailable"`
}

// ChatMessage is one turn of a conversation, persisted per session.
type ChatMessage struct {
	ID        int64
	MessageID string
	SessionID string
	Role      string
	Content   string
	Citations []Citation
	CreatedAt time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationProvider produces an answer from an instruction and a prompt.
type GenerationProvider interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// DocumentStore persists document records. Lookups on a missing document
// return (nil, nil); callers translate that to ErrDocumentNotFound where it
// matters.
type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id int64) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	ListByStatus(ctx context.Context, status DocumentStatus) ([]Document, error)
	UpdateStatus(ctx context.Context, id int64, status DocumentStatus, errDetail string) error
	MarkIndexed(ctx context.Context, id int64, chunkCount int, contentHash string) error
	Delete(ctx context.Context, id int64) error
}

// ChunkStore persists a document's chunks. ReplaceForDocument swaps the full
// chunk set in one transaction so re-ingestion never leaves a mix of old and
// new rows.
type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID int64, chunks []Chunk) error
	GetByDocumentID(ctx context.Context, documentID int64) ([]Chunk, error)
	DeleteByDocumentID(ctx context.Context, documentID int64) error
}

// BlobStore fetches uploaded document bytes.
type BlobStore interface {
	Get(ctx context.Context, blobURL string) ([]byte, error)
}

// ChatStore persists conversation history.
type ChatStore interface {
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	ListBySession(ctx context.Context, sessionID string) ([]ChatMessage, error)
}
