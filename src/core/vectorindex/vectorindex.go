// Package vectorindex provides an in-memory vector store with cosine
// similarity search. Readers always see a complete, immutable snapshot:
// writers build the replacement state off to the side and publish it with a
// single pointer swap, so a search never observes a document whose chunks are
// half replaced.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrDimensionMismatch means a vector's length does not match the
	// index dimensionality. Nothing is written when this is returned.
	ErrDimensionMismatch = errors.New("vector dimensionality mismatch")
	// ErrInvalidK means Search was called with k < 1.
	ErrInvalidK = errors.New("k must be at least 1")
)

// Entry is one chunk's vector plus the metadata needed to cite it.
type Entry struct {
	ChunkID    int64
	DocumentID int64
	Vector     []float32
	Text       string
}

// Hit is a single search result.
type Hit struct {
	ChunkID    int64
	DocumentID int64
	Score      float64
	Text       string
}

// Store is the vector storage contract the orchestrator works against.
// Upsert and Delete replace or remove all entries of one document as a unit;
// a concurrent Search sees either all of the old generation or all of the
// new one, never a mix.
type Store interface {
	Upsert(ctx context.Context, documentID int64, entries []Entry) error
	Delete(ctx context.Context, documentID int64) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

type indexed struct {
	entry Entry
	norm  float64
}

// snapshot is an immutable view of the index. The docs map and the slices it
// holds are never mutated after publication.
type snapshot struct {
	docs map[int64][]indexed
}

// Index is the in-memory Store implementation.
type Index struct {
	dims int

	mu   sync.Mutex // serializes writers only; readers never take it
	snap atomic.Pointer[snapshot]
}

var _ Store = (*Index)(nil)

// New creates an empty index for vectors of the given dimensionality.
func New(dims int) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dims)
	}
	x := &Index{dims: dims}
	x.snap.Store(&snapshot{docs: map[int64][]indexed{}})
	return x, nil
}

// Dimensions returns the vector dimensionality the index was created with.
func (x *Index) Dimensions() int {
	return x.dims
}

// Size returns the number of entries in the current snapshot.
func (x *Index) Size() int {
	snap := x.snap.Load()
	n := 0
	for _, entries := range snap.docs {
		n += len(entries)
	}
	return n
}

// Upsert atomically replaces all entries for the document. An empty entry
// slice removes the document, same as Delete. All vectors are validated and
// prepared before the writer lock is taken, so a dimensionality error leaves
// the index untouched and the exclusive section is just a map clone and a
// pointer swap.
func (x *Index) Upsert(_ context.Context, documentID int64, entries []Entry) error {
	prepared := make([]indexed, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != x.dims {
			return fmt.Errorf("%w: chunk %d has %d dimensions, index expects %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), x.dims)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		e.DocumentID = documentID
		prepared = append(prepared, indexed{entry: e, norm: norm(vec)})
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	next := x.clone()
	if len(prepared) == 0 {
		delete(next.docs, documentID)
	} else {
		next.docs[documentID] = prepared
	}
	x.snap.Store(next)
	return nil
}

// Delete removes all entries for the document. Deleting an absent document
// is a no-op.
func (x *Index) Delete(_ context.Context, documentID int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	if _, ok := cur.docs[documentID]; !ok {
		return nil
	}
	next := x.clone()
	delete(next.docs, documentID)
	x.snap.Store(next)
	return nil
}

// Search returns the k entries most similar to the query vector by cosine
// similarity, descending by score with ties broken by ascending chunk ID.
// It runs against the snapshot current at call time and never blocks on
// concurrent writers. When fewer than k entries exist, all are returned.
func (x *Index) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(vector) != x.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(vector), x.dims)
	}

	snap := x.snap.Load()
	queryNorm := norm(vector)

	hits := make([]Hit, 0, x.sizeOf(snap))
	for _, entries := range snap.docs {
		for _, ix := range entries {
			hits = append(hits, Hit{
				ChunkID:    ix.entry.ChunkID,
				DocumentID: ix.entry.DocumentID,
				Score:      cosine(vector, queryNorm, ix.entry.Vector, ix.norm),
				Text:       ix.entry.Text,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// clone shallow-copies the current snapshot's document map. Entry slices are
// shared with the previous snapshot; they are immutable once published.
func (x *Index) clone() *snapshot {
	cur := x.snap.Load()
	docs := make(map[int64][]indexed, len(cur.docs)+1)
	for id, entries := range cur.docs {
		docs[id] = entries
	}
	return &snapshot{docs: docs}
}

func (x *Index) sizeOf(snap *snapshot) int {
	n := 0
	for _, entries := range snap.docs {
		n += len(entries)
	}
	return n
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (|a|*|b|). A zero-magnitude vector has no
// direction, so its similarity to anything is 0.
func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
