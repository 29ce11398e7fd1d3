package weaviate

import (
	"testing"

	"github.com/weaviate/weaviate/entities/models"

	"smartassist/src/core/vectorindex"
)

func queryResult(className string, objects []interface{}) map[string]models.JSONObject {
	return map[string]models.JSONObject{
		"Get": map[string]interface{}{
			className: objects,
		},
	}
}

func object(documentID, chunkID, generation int64, text string, certainty float64) map[string]interface{} {
	return map[string]interface{}{
		"documentId": float64(documentID),
		"chunkId":    float64(chunkID),
		"generation": float64(generation),
		"text":       text,
		"_additional": map[string]interface{}{
			"certainty": certainty,
		},
	}
}

func TestParseHits(t *testing.T) {
	data := queryResult("KnowledgeChunk", []interface{}{
		object(1, 10, 100, "first", 0.9),
		object(2, 20, 200, "second", 0.75),
	})

	hits := parseHits(data, "KnowledgeChunk")
	if len(hits) != 2 {
		t.Fatalf("parsed %d hits, want 2", len(hits))
	}
	if hits[0].hit.DocumentID != 1 || hits[0].hit.ChunkID != 10 || hits[0].hit.Text != "first" {
		t.Errorf("first hit = %+v", hits[0].hit)
	}
	if hits[0].generation != 100 {
		t.Errorf("first hit generation = %d, want 100", hits[0].generation)
	}
	// Certainty is (1 + cosine) / 2, so 0.9 maps back to 0.8.
	if got := hits[0].hit.Score; got < 0.799 || got > 0.801 {
		t.Errorf("first hit score = %v, want 0.8", got)
	}
	if got := hits[1].hit.Score; got < 0.499 || got > 0.501 {
		t.Errorf("second hit score = %v, want 0.5", got)
	}
}

func TestParseHitsMalformedData(t *testing.T) {
	tests := []struct {
		name string
		data map[string]models.JSONObject
	}{
		{"nil data", nil},
		{"missing Get", map[string]models.JSONObject{}},
		{"wrong class", queryResult("OtherClass", []interface{}{object(1, 1, 1, "x", 0.5)})},
		{"non-object entry", queryResult("KnowledgeChunk", []interface{}{"garbage"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := parseHits(tt.data, "KnowledgeChunk")
			if len(hits) != 0 {
				t.Errorf("parsed %d hits from malformed data", len(hits))
			}
		})
	}
}

func TestKeepNewestGenerationDropsStaleEntries(t *testing.T) {
	// Document 1 is mid-replacement: generations 100 and 200 coexist.
	// Document 2 has a single generation.
	scored := []scoredHit{
		{hit: vectorindex.Hit{DocumentID: 1, ChunkID: 11, Score: 0.9}, generation: 100},
		{hit: vectorindex.Hit{DocumentID: 1, ChunkID: 15, Score: 0.8}, generation: 200},
		{hit: vectorindex.Hit{DocumentID: 2, ChunkID: 21, Score: 0.7}, generation: 50},
		{hit: vectorindex.Hit{DocumentID: 1, ChunkID: 12, Score: 0.6}, generation: 100},
		{hit: vectorindex.Hit{DocumentID: 1, ChunkID: 16, Score: 0.5}, generation: 200},
	}

	kept := keepNewestGeneration(scored)
	if len(kept) != 3 {
		t.Fatalf("kept %d hits, want 3", len(kept))
	}
	for _, h := range kept {
		if h.DocumentID == 1 && (h.ChunkID == 11 || h.ChunkID == 12) {
			t.Errorf("stale generation chunk %d survived", h.ChunkID)
		}
	}
	found := map[int64]bool{}
	for _, h := range kept {
		found[h.ChunkID] = true
	}
	for _, want := range []int64{15, 16, 21} {
		if !found[want] {
			t.Errorf("chunk %d missing from kept hits", want)
		}
	}
}

func TestKeepNewestGenerationSingleGeneration(t *testing.T) {
	scored := []scoredHit{
		{hit: vectorindex.Hit{DocumentID: 1, ChunkID: 1}, generation: 7},
		{hit: vectorindex.Hit{DocumentID: 1, ChunkID: 2}, generation: 7},
	}
	if kept := keepNewestGeneration(scored); len(kept) != 2 {
		t.Errorf("kept %d hits, want all 2", len(kept))
	}
}

func TestRankHits(t *testing.T) {
	hits := []vectorindex.Hit{
		{ChunkID: 3, Score: 0.5},
		{ChunkID: 1, Score: 0.9},
		{ChunkID: 5, Score: 0.7},
		// Tied with chunk 1; the lower chunk ID must win the tie.
		{ChunkID: 7, Score: 0.9},
	}

	ranked := rankHits(hits, 2)
	if len(ranked) != 2 {
		t.Fatalf("ranked %d hits, want 2", len(ranked))
	}
	if ranked[0].ChunkID != 1 || ranked[1].ChunkID != 7 {
		t.Errorf("top hits = %d, %d; want 1, 7", ranked[0].ChunkID, ranked[1].ChunkID)
	}
}

func TestRankHitsFewerThanK(t *testing.T) {
	hits := []vectorindex.Hit{{ChunkID: 1, Score: 0.4}}
	if ranked := rankHits(hits, 10); len(ranked) != 1 {
		t.Errorf("ranked %d hits, want 1", len(ranked))
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, "", 8); err == nil {
		t.Error("NewStore(nil client) expected error")
	}
}
