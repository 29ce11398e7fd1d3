// Package weaviate backs the vector store contract with a Weaviate instance,
// for deployments where the index must outlive the process and be shared
// between the API server and workers.
//
// Weaviate has no multi-object transactions, so a document swap cannot be a
// single atomic publish the way the in-memory index does it. The store
// approximates the guarantee with generation tags: Upsert writes the new
// entries under a fresh generation before deleting the old ones, and Search
// keeps only the newest generation it sees per document. A reader can briefly
// observe a new generation mid-write, but never an empty window between two
// generations and never a mix of old and new entries in one result set.
package weaviate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"smartassist/src/core/vectorindex"
)

const DefaultClassName = "KnowledgeChunk"

// Store implements the vector store contract on Weaviate. Vectors are
// provided by the pipeline, so the class is created with vectorizer "none".
type Store struct {
	client    *weaviate.Client
	className string
	dims      int
}

var _ vectorindex.Store = (*Store)(nil)

func NewStore(client *weaviate.Client, className string, dims int) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("weaviate client is required")
	}
	if className == "" {
		className = DefaultClassName
	}
	if dims <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dims)
	}

	return &Store{
		client:    client,
		className: className,
		dims:      dims,
	}, nil
}

// EnsureSchema creates the chunk class if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.classExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      s.className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "documentId", DataType: []string{"int"}},
			{Name: "chunkId", DataType: []string{"int"}},
			{Name: "generation", DataType: []string{"int"}},
			{Name: "text", DataType: []string{"text"}},
		},
	}

	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create weaviate class: %v", err)
	}
	return nil
}

func (s *Store) classExists(ctx context.Context) (bool, error) {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get weaviate schema: %v", err)
	}
	for _, class := range schema.Classes {
		if class.Class == s.className {
			return true, nil
		}
	}
	return false, nil
}

// Upsert replaces all of a document's entries. The new generation is written
// first; only once the batch has landed are earlier generations deleted, so a
// concurrent Search never finds the document empty between generations.
func (s *Store) Upsert(ctx context.Context, documentID int64, entries []vectorindex.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dims {
			return fmt.Errorf("%w: chunk %d has %d dimensions, store expects %d",
				vectorindex.ErrDimensionMismatch, e.ChunkID, len(e.Vector), s.dims)
		}
	}

	if len(entries) == 0 {
		return s.Delete(ctx, documentID)
	}

	generation := time.Now().UnixNano()

	objects := make([]*models.Object, len(entries))
	for i, e := range entries {
		objects[i] = &models.Object{
			Class:  s.className,
			Vector: e.Vector,
			Properties: map[string]interface{}{
				"documentId": e.DocumentID,
				"chunkId":    e.ChunkID,
				"generation": generation,
				"text":       e.Text,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add vectors: %v", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch operation returned no results")
	}

	return s.deleteGenerationsBefore(ctx, documentID, generation)
}

// Delete removes all entries of a document.
func (s *Store) Delete(ctx context.Context, documentID int64) error {
	where := filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueInt(documentID)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete vectors for document %d: %v", documentID, err)
	}
	return nil
}

func (s *Store) deleteGenerationsBefore(ctx context.Context, documentID, generation int64) error {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"documentId"}).
				WithOperator(filters.Equal).
				WithValueInt(documentID),
			filters.Where().
				WithPath([]string{"generation"}).
				WithOperator(filters.LessThan).
				WithValueInt(generation),
		})

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete stale vectors for document %d: %v", documentID, err)
	}
	return nil
}

// Search queries the k nearest entries by cosine similarity, descending by
// score with ties broken by ascending chunk ID. The server is asked for a
// margin beyond k: Weaviate cuts its own result set at the limit before the
// chunk-ID tie-break can apply, and a document mid-replacement can contribute
// entries from two generations of which only the newest is kept.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Hit, error) {
	if k < 1 {
		return nil, vectorindex.ErrInvalidK
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			vectorindex.ErrDimensionMismatch, len(vector), s.dims)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	fields := []graphql.Field{
		{Name: "documentId"},
		{Name: "chunkId"},
		{Name: "generation"},
		{Name: "text"},
		{Name: "_additional { certainty }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(2*k + 10).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %v", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vector query failed: %v", result.Errors[0].Message)
	}

	scored := parseHits(result.Data, s.className)
	return rankHits(keepNewestGeneration(scored), k), nil
}

type scoredHit struct {
	hit        vectorindex.Hit
	generation int64
}

func parseHits(data map[string]models.JSONObject, className string) []scoredHit {
	var hits []scoredHit

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return hits
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return hits
	}

	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		var sh scoredHit
		if v, ok := objMap["documentId"].(float64); ok {
			sh.hit.DocumentID = int64(v)
		}
		if v, ok := objMap["chunkId"].(float64); ok {
			sh.hit.ChunkID = int64(v)
		}
		if v, ok := objMap["generation"].(float64); ok {
			sh.generation = int64(v)
		}
		if v, ok := objMap["text"].(string); ok {
			sh.hit.Text = v
		}
		if additional, ok := objMap["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				// Certainty is (1 + cosine) / 2; map it back to cosine so
				// both store implementations score on the same scale.
				sh.hit.Score = certainty*2 - 1
			}
		}
		hits = append(hits, sh)
	}
	return hits
}

// keepNewestGeneration drops entries of a document that carry an older
// generation tag than the newest one present, so a result set never mixes
// two generations of the same document.
func keepNewestGeneration(hits []scoredHit) []vectorindex.Hit {
	newest := make(map[int64]int64)
	for _, sh := range hits {
		if gen, ok := newest[sh.hit.DocumentID]; !ok || sh.generation > gen {
			newest[sh.hit.DocumentID] = sh.generation
		}
	}

	kept := make([]vectorindex.Hit, 0, len(hits))
	for _, sh := range hits {
		if sh.generation == newest[sh.hit.DocumentID] {
			kept = append(kept, sh.hit)
		}
	}
	return kept
}

func rankHits(hits []vectorindex.Hit, k int) []vectorindex.Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
