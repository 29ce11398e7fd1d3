package vectorindex_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"smartassist/src/core/vectorindex"
)

func newIndex(t *testing.T, dims int) *vectorindex.Index {
	t.Helper()
	x, err := vectorindex.New(dims)
	if err != nil {
		t.Fatalf("New(%d) error = %v", dims, err)
	}
	return x
}

func TestNewInvalidDimensions(t *testing.T) {
	for _, dims := range []int{0, -1} {
		if _, err := vectorindex.New(dims); err == nil {
			t.Errorf("New(%d) expected error", dims)
		}
	}
}

func TestSearchRankingAndTieBreak(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	// C2 and C3 score identically against the query; the tie must resolve to
	// the lower chunk ID first.
	err := x.Upsert(ctx, 1, []vectorindex.Entry{
		{ChunkID: 1, Vector: []float32{1, 0}, Text: "aligned"},
		{ChunkID: 3, Vector: []float32{0, 1}, Text: "orthogonal b"},
		{ChunkID: 2, Vector: []float32{0, 1}, Text: "orthogonal a"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	hits, err := x.Search(ctx, []float32{2, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("Search() returned %d hits, want 3", len(hits))
	}
	wantOrder := []int64{1, 2, 3}
	for i, want := range wantOrder {
		if hits[i].ChunkID != want {
			t.Errorf("hit %d chunk = %d, want %d", i, hits[i].ChunkID, want)
		}
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
	if hits[1].Score != hits[2].Score {
		t.Errorf("tied entries have different scores: %v vs %v", hits[1].Score, hits[2].Score)
	}
}

func TestSearchKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	if err := x.Upsert(ctx, 1, []vectorindex.Entry{{ChunkID: 1, Vector: []float32{1, 1}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	hits, err := x.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("Search() returned %d hits, want 1", len(hits))
	}
}

func TestSearchInvalidK(t *testing.T) {
	x := newIndex(t, 2)
	if _, err := x.Search(context.Background(), []float32{1, 0}, 0); !errors.Is(err, vectorindex.ErrInvalidK) {
		t.Errorf("Search(k=0) error = %v, want ErrInvalidK", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	x := newIndex(t, 2)
	hits, err := x.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Search() on empty index returned %d hits", len(hits))
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 3)

	err := x.Upsert(ctx, 1, []vectorindex.Entry{
		{ChunkID: 1, Vector: []float32{1, 0, 0}},
		{ChunkID: 2, Vector: []float32{1, 0}},
	})
	if !errors.Is(err, vectorindex.ErrDimensionMismatch) {
		t.Fatalf("Upsert() error = %v, want ErrDimensionMismatch", err)
	}
	// A rejected upsert must not leave partial state behind.
	if got := x.Size(); got != 0 {
		t.Errorf("index size after rejected upsert = %d, want 0", got)
	}

	if _, err := x.Search(ctx, []float32{1, 0}, 1); !errors.Is(err, vectorindex.ErrDimensionMismatch) {
		t.Errorf("Search() with wrong dims error = %v, want ErrDimensionMismatch", err)
	}
}

func TestUpsertReplacesDocument(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	if err := x.Upsert(ctx, 1, []vectorindex.Entry{
		{ChunkID: 1, Vector: []float32{1, 0}},
		{ChunkID: 2, Vector: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := x.Upsert(ctx, 1, []vectorindex.Entry{
		{ChunkID: 10, Vector: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	hits, err := x.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != 10 {
		t.Errorf("Search() = %+v, want only chunk 10", hits)
	}
}

func TestUpsertEmptyRemovesDocument(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	if err := x.Upsert(ctx, 1, []vectorindex.Entry{{ChunkID: 1, Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := x.Upsert(ctx, 1, nil); err != nil {
		t.Fatalf("Upsert(nil) error = %v", err)
	}
	if got := x.Size(); got != 0 {
		t.Errorf("index size = %d, want 0", got)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	if err := x.Upsert(ctx, 1, []vectorindex.Entry{{ChunkID: 1, Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := x.Upsert(ctx, 2, []vectorindex.Entry{{ChunkID: 2, Vector: []float32{0, 1}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := x.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	hits, err := x.Search(ctx, []float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != 2 {
		t.Errorf("Search() after delete = %+v, want only document 2", hits)
	}

	// Deleting an absent document is a no-op.
	if err := x.Delete(ctx, 99); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}

func TestZeroNormVector(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	if err := x.Upsert(ctx, 1, []vectorindex.Entry{{ChunkID: 1, Vector: []float32{0, 0}}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	hits, err := x.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 0 {
		t.Errorf("zero-norm entry score = %+v, want 0", hits)
	}
}

func TestUpsertCopiesVectors(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	vec := []float32{1, 0}
	if err := x.Upsert(ctx, 1, []vectorindex.Entry{{ChunkID: 1, Vector: vec}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	vec[0] = 0
	vec[1] = 1

	hits, err := x.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("caller mutation leaked into index, score = %v", hits[0].Score)
	}
}

// TestConcurrentSearchSeesWholeGenerations hammers one document with
// replacements while readers search. Every result set must come from a single
// generation: all chunk IDs in one response carry the same generation tag.
func TestConcurrentSearchSeesWholeGenerations(t *testing.T) {
	ctx := context.Background()
	x := newIndex(t, 2)

	const generations = 200
	const chunksPerGen = 5

	makeGen := func(gen int64) []vectorindex.Entry {
		entries := make([]vectorindex.Entry, 0, chunksPerGen)
		for i := int64(0); i < chunksPerGen; i++ {
			entries = append(entries, vectorindex.Entry{
				ChunkID: gen*1000 + i,
				Vector:  []float32{1, float32(i)},
			})
		}
		return entries
	}

	if err := x.Upsert(ctx, 1, makeGen(0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for gen := int64(1); gen <= generations; gen++ {
			if err := x.Upsert(ctx, 1, makeGen(gen)); err != nil {
				errCh <- err
				return
			}
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				hits, err := x.Search(ctx, []float32{1, 1}, chunksPerGen)
				if err != nil {
					errCh <- err
					return
				}
				if len(hits) != chunksPerGen {
					errCh <- errors.New("search returned partial generation")
					return
				}
				gen := hits[0].ChunkID / 1000
				for _, h := range hits {
					if h.ChunkID/1000 != gen {
						errCh <- errors.New("search mixed entries from two generations")
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	select {
	case err := <-errCh:
		t.Fatal(err)
	default:
	}
}
