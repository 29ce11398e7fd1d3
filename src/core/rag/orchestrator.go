package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v3"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"smartassist/src/core/chunker"
	"smartassist/src/core/extract"
	"smartassist/src/core/vectorindex"
	"smartassist/src/log"
)

const (
	DefaultTopK               = 5
	DefaultMaxContextChars    = 6000
	DefaultEmbedMaxRetries    = 3
	DefaultEmbedRetryInterval = 500 * time.Millisecond
	DefaultFallbackMessage    = "The assistant is temporarily unavailable. Please try again in a moment."

	noContextMessage = "I could not find anything in the knowledge base related to your question."
)

// Config tunes retrieval and retry behaviour. Zero values fall back to the
// package defaults.
type Config struct {
	TopK               int
	MaxContextChars    int
	EmbedMaxRetries    int
	EmbedRetryInterval time.Duration
	FallbackMessage    string
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = DefaultMaxContextChars
	}
	if c.EmbedMaxRetries <= 0 {
		c.EmbedMaxRetries = DefaultEmbedMaxRetries
	}
	if c.EmbedRetryInterval <= 0 {
		c.EmbedRetryInterval = DefaultEmbedRetryInterval
	}
	if c.FallbackMessage == "" {
		c.FallbackMessage = DefaultFallbackMessage
	}
}

// Orchestrator wires the pipeline stages together: it drives documents
// through extraction, chunking, embedding and indexing, and answers
// questions from the index.
type Orchestrator struct {
	extractors *extract.Registry
	chunker    *chunker.Chunker
	embedder   EmbeddingProvider
	generator  GenerationProvider
	index      vectorindex.Store

	documents DocumentStore
	chunks    ChunkStore
	blobs     BlobStore
	chats     ChatStore

	breaker  *gobreaker.CircuitBreaker
	chunkIDs *snowflake.Node
	cfg      Config

	// docMu serializes ingestion and deletion per document, so a re-upload
	// racing a delete cannot interleave their index and store writes.
	docMuGuard sync.Mutex
	docMu      map[int64]*sync.Mutex
}

// Deps carries the orchestrator's collaborators. All fields except Generator
// and Chats are required; without a generator Answer always degrades, and
// without a chat store history is not persisted.
type Deps struct {
	Extractors *extract.Registry
	Chunker    *chunker.Chunker
	Embedder   EmbeddingProvider
	Generator  GenerationProvider
	Index      vectorindex.Store
	Documents  DocumentStore
	Chunks     ChunkStore
	Blobs      BlobStore
	Chats      ChatStore
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Extractors == nil {
		return nil, errors.New("extractor registry is required")
	}
	if deps.Chunker == nil {
		return nil, errors.New("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedding provider is required")
	}
	if deps.Index == nil {
		return nil, errors.New("vector index is required")
	}
	if deps.Documents == nil {
		return nil, errors.New("document store is required")
	}
	if deps.Chunks == nil {
		return nil, errors.New("chunk store is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}

	cfg.applyDefaults()

	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "generation",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Orchestrator{
		extractors: deps.Extractors,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		generator:  deps.Generator,
		index:      deps.Index,
		documents:  deps.Documents,
		chunks:     deps.Chunks,
		blobs:      deps.Blobs,
		chats:      deps.Chats,
		breaker:    breaker,
		chunkIDs:   node,
		cfg:        cfg,
		docMu:      make(map[int64]*sync.Mutex),
	}, nil
}

func (o *Orchestrator) lockDocument(id int64) func() {
	o.docMuGuard.Lock()
	mu, ok := o.docMu[id]
	if !ok {
		mu = &sync.Mutex{}
		o.docMu[id] = mu
	}
	o.docMuGuard.Unlock()

	mu.Lock()
	return mu.Unlock
}

// forgetDocument drops a document's lock entry once the document is gone, so
// the lock map does not grow with every document ever deleted.
func (o *Orchestrator) forgetDocument(id int64) {
	o.docMuGuard.Lock()
	delete(o.docMu, id)
	o.docMuGuard.Unlock()
}

// Ingest drives one document through the full pipeline. It is idempotent:
// re-ingesting a document whose content hash has not changed since it was
// last indexed is a no-op. On failure the document is marked failed with the
// stage error recorded, and the error is returned so job retries can kick in.
func (o *Orchestrator) Ingest(ctx context.Context, documentID int64) error {
	unlock := o.lockDocument(documentID)
	defer unlock()

	doc, err := o.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document %d: %w", documentID, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	data, err := o.blobs.Get(ctx, doc.BlobURL)
	if err != nil {
		return o.failDocument(ctx, documentID, fmt.Errorf("failed to fetch document blob: %w", err))
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])
	if doc.Status == StatusIndexed && doc.ContentHash == contentHash {
		log.Info("document content unchanged, skipping ingestion", "documentID", documentID)
		return nil
	}

	if err := o.documents.UpdateStatus(ctx, documentID, StatusExtracting, ""); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	text, err := o.extractors.Extract(doc.ContentType, data)
	if err != nil {
		return o.failDocument(ctx, documentID, err)
	}

	if err := o.documents.UpdateStatus(ctx, documentID, StatusChunking, ""); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	pieces := o.chunker.Chunk(text)
	if len(pieces) == 0 {
		return o.failDocument(ctx, documentID, errors.New("document contains no extractable text"))
	}

	if err := o.documents.UpdateStatus(ctx, documentID, StatusEmbedding, ""); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	vectors, err := o.embedPieces(ctx, pieces)
	if err != nil {
		return o.failDocument(ctx, documentID, err)
	}

	now := time.Now()
	docChunks := make([]Chunk, 0, len(pieces))
	entries := make([]vectorindex.Entry, 0, len(pieces))
	for i, piece := range pieces {
		chunkID := o.chunkIDs.Generate().Int64()
		docChunks = append(docChunks, Chunk{
			ID:         chunkID,
			DocumentID: documentID,
			Seq:        i,
			Start:      piece.Start,
			End:        piece.End,
			Text:       piece.Text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		})
		entries = append(entries, vectorindex.Entry{
			ChunkID:    chunkID,
			DocumentID: documentID,
			Vector:     vectors[i],
			Text:       piece.Text,
		})
	}

	if err := o.chunks.ReplaceForDocument(ctx, documentID, docChunks); err != nil {
		return o.failDocument(ctx, documentID, fmt.Errorf("failed to store chunks: %w", err))
	}
	if err := o.index.Upsert(ctx, documentID, entries); err != nil {
		return o.failDocument(ctx, documentID, fmt.Errorf("failed to index chunks: %w", err))
	}
	if err := o.documents.MarkIndexed(ctx, documentID, len(docChunks), contentHash); err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}

	log.Info("document ingested", "documentID", documentID, "chunks", len(docChunks))
	return nil
}

// embedPieces embeds all chunk texts, retrying transient embedding failures
// with exponential backoff. Malformed responses abort immediately.
func (o *Orchestrator) embedPieces(ctx context.Context, pieces []chunker.Piece) ([][]float32, error) {
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	var vectors [][]float32
	operation := func() error {
		vs, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, ErrEmbeddingUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(vs) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d texts",
				ErrEmbeddingMalformed, len(vs), len(texts)))
		}
		vectors = vs
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.cfg.EmbedRetryInterval
	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(o.cfg.EmbedMaxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to embed document chunks: %w", err)
	}
	return vectors, nil
}

func (o *Orchestrator) failDocument(ctx context.Context, documentID int64, cause error) error {
	log.Error(cause, "document ingestion failed", "documentID", documentID)
	if err := o.documents.UpdateStatus(ctx, documentID, StatusFailed, cause.Error()); err != nil {
		log.Error(err, "failed to record document failure", "documentID", documentID)
	}
	return cause
}

// DeleteDocument removes a document everywhere: the vector index first so
// searches stop citing it, then its chunks, then the record itself.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentID int64) error {
	unlock := o.lockDocument(documentID)
	defer unlock()

	doc, err := o.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document %d: %w", documentID, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	if err := o.index.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to remove document from index: %w", err)
	}
	if err := o.chunks.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	if err := o.documents.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	o.forgetDocument(documentID)

	log.Info("document deleted", "documentID", documentID)
	return nil
}

// Answer retrieves the chunks most similar to the question, assembles a
// bounded context, and asks the generation backend. It always returns a well
// formed result: embedding or generation outages produce a degraded answer
// with Unavailable set, never an error.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, question string) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	o.saveMessage(ctx, sessionID, RoleUser, question, nil)

	queryVector, err := o.embedder.Embed(ctx, question)
	if err != nil {
		log.Error(err, "failed to embed question", "sessionID", sessionID)
		return o.degraded(ctx, sessionID, nil), nil
	}

	hits, err := o.index.Search(ctx, queryVector, o.cfg.TopK)
	if err != nil {
		log.Error(err, "vector search failed", "sessionID", sessionID)
		return o.degraded(ctx, sessionID, nil), nil
	}

	if len(hits) == 0 {
		result := &AnswerResult{
			SessionID: sessionID,
			MessageID: uuid.NewString(),
			Answer:    noContextMessage,
			Citations: []Citation{},
		}
		o.saveMessage(ctx, sessionID, RoleAssistant, result.Answer, result.Citations)
		return result, nil
	}

	// Cite only the chunks that made it into the bounded context; hits
	// dropped by the budget were never shown to the model.
	contextText, contextHits := assembleContext(hits, o.cfg.MaxContextChars)
	citations := make([]Citation, 0, len(contextHits))
	for _, hit := range contextHits {
		citations = append(citations, Citation{
			DocumentID: hit.DocumentID,
			ChunkID:    hit.ChunkID,
			Score:      hit.Score,
		})
	}
	system, prompt, err := buildPrompt(contextText, question)
	if err != nil {
		log.Error(err, "failed to build prompt", "sessionID", sessionID)
		return o.degraded(ctx, sessionID, citations), nil
	}

	if o.generator == nil {
		return o.degraded(ctx, sessionID, citations), nil
	}

	answer, err := o.breaker.Execute(func() (interface{}, error) {
		return o.generator.Generate(ctx, system, prompt)
	})
	if err != nil {
		log.Error(err, "generation failed", "sessionID", sessionID)
		return o.degraded(ctx, sessionID, citations), nil
	}

	result := &AnswerResult{
		SessionID: sessionID,
		MessageID: uuid.NewString(),
		Answer:    answer.(string),
		Citations: citations,
	}
	o.saveMessage(ctx, sessionID, RoleAssistant, result.Answer, result.Citations)
	return result, nil
}

// degraded builds the fallback result for a backend outage. Citations found
// before the failure are kept so the caller can still show sources.
func (o *Orchestrator) degraded(ctx context.Context, sessionID string, citations []Citation) *AnswerResult {
	if citations == nil {
		citations = []Citation{}
	}
	result := &AnswerResult{
		SessionID:   sessionID,
		MessageID:   uuid.NewString(),
		Answer:      o.cfg.FallbackMessage,
		Citations:   citations,
		Unavailable: true,
	}
	o.saveMessage(ctx, sessionID, RoleAssistant, result.Answer, result.Citations)
	return result
}

// saveMessage persists a conversation turn. History is best effort: a store
// failure is logged, never surfaced into the answer path.
func (o *Orchestrator) saveMessage(ctx context.Context, sessionID, role, content string, citations []Citation) {
	if o.chats == nil {
		return
	}
	msg := &ChatMessage{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Citations: citations,
	}
	if err := o.chats.SaveMessage(ctx, msg); err != nil {
		log.Error(err, "failed to save chat message", "sessionID", sessionID, "role", role)
	}
}

// History returns the persisted conversation for a session, oldest first.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	if o.chats == nil {
		return nil, nil
	}
	msgs, err := o.chats.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return msgs, nil
}

// RestoreIndex rebuilds the in-memory vector index from persisted chunks of
// indexed documents. Documents whose chunks cannot be restored are marked
// failed and skipped; a bad document must not block the rest.
func (o *Orchestrator) RestoreIndex(ctx context.Context) error {
	docs, err := o.documents.ListByStatus(ctx, StatusIndexed)
	if err != nil {
		return fmt.Errorf("failed to list indexed documents: %w", err)
	}

	restored := 0
	for _, doc := range docs {
		chunks, err := o.chunks.GetByDocumentID(ctx, doc.ID)
		if err != nil {
			o.failDocument(ctx, doc.ID, fmt.Errorf("failed to load chunks for restore: %w", err))
			continue
		}
		entries := make([]vectorindex.Entry, 0, len(chunks))
		for _, c := range chunks {
			entries = append(entries, vectorindex.Entry{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Vector:     c.Embedding,
				Text:       c.Text,
			})
		}
		if err := o.index.Upsert(ctx, doc.ID, entries); err != nil {
			o.failDocument(ctx, doc.ID, fmt.Errorf("failed to restore document into index: %w", err))
			continue
		}
		restored++
	}

	log.Info("vector index restored", "documents", restored)
	return nil
}
