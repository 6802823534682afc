package rag

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"testing"

	"github.com/54b3r/tubeqa-go/internal/transcript"
)

// mapEmbedder returns a fixed vector per text and counts Embed calls.
type mapEmbedder struct {
	vecs  map[string][]float32
	calls int
	err   error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vecs[t]
		if !ok {
			v = []float32{0, 0}
		}
		out[i] = v
	}
	return out, nil
}

// fakeStore is an in-memory VectorStore keyed by document ID.
type fakeStore struct {
	docs    map[string]Document
	vecs    map[string][]float32
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]Document{}, vecs: map[string][]float32{}}
}

func (f *fakeStore) Upsert(_ context.Context, docs []Document, embeddings [][]float32) error {
	for i, d := range docs {
		f.docs[d.ID] = d
		f.vecs[d.ID] = embeddings[i]
	}
	return nil
}

// Search ranks every stored point by similarity, best first.
func (f *fakeStore) Search(_ context.Context, q []float32, topK int) ([]Document, error) {
	out, err := f.rank(q, nil)
	if err != nil {
		return nil, err
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeStore) SearchIDs(_ context.Context, q []float32, ids []string) ([]Document, error) {
	return f.rank(q, ids)
}

// rank scores stored points against q, limited to ids when non-nil.
func (f *fakeStore) rank(q []float32, ids []string) ([]Document, error) {
	var out []Document
	for id, d := range f.docs {
		if ids != nil && !slices.Contains(ids, id) {
			continue
		}
		sim, err := Cosine(q, f.vecs[id])
		if err != nil {
			return nil, err
		}
		d.Score = float32(sim)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestCosine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{0, 0}, []float32{1, 1}, 0},
		{[]float32{3, 4}, []float32{6, 8}, 1},
	}
	for _, tc := range cases {
		got, err := Cosine(tc.a, tc.b)
		if err != nil {
			t.Fatalf("Cosine(%v, %v): %v", tc.a, tc.b, err)
		}
		if math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
	if _, err := Cosine([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}
}

func TestPointID_Deterministic(t *testing.T) {
	t.Parallel()
	a := PointID("dQw4w9WgXcQ", 3)
	if a != PointID("dQw4w9WgXcQ", 3) {
		t.Error("PointID is not deterministic")
	}
	if a == PointID("dQw4w9WgXcQ", 4) || a == PointID("otherVideo1", 3) {
		t.Error("PointID collides across chunks")
	}
}

func TestEmbeddingScorer_Local(t *testing.T) {
	t.Parallel()
	emb := &mapEmbedder{vecs: map[string][]float32{
		"question": {1, 0},
		"same":     {1, 0},
		"orthog":   {0, 1},
		"opposite": {-1, 0},
	}}
	s, err := NewEmbeddingScorer(emb, nil)
	if err != nil {
		t.Fatalf("NewEmbeddingScorer: %v", err)
	}

	cands := []ScoredChunk{
		{Chunk: transcript.Chunk{Text: "same"}},
		{Chunk: transcript.Chunk{Text: "orthog"}},
		{Chunk: transcript.Chunk{Text: "opposite"}},
		{Chunk: transcript.Chunk{Text: "same"}, Ordinal: 5},
	}
	if err := s.Score(context.Background(), "question", cands); err != nil {
		t.Fatalf("Score: %v", err)
	}

	want := []float64{0.95, 0.3, 0.3, 0.945}
	for i, w := range want {
		if !approx(cands[i].Score, w) {
			t.Errorf("candidate %d score = %v, want %v", i, cands[i].Score, w)
		}
	}
	if emb.calls != 2 {
		t.Errorf("Embed called %d times, want 2 (question + one chunk batch)", emb.calls)
	}
}

func TestEmbeddingScorer_Batches(t *testing.T) {
	t.Parallel()
	emb := &mapEmbedder{vecs: map[string][]float32{"q": {1, 0}}}
	s, _ := NewEmbeddingScorer(emb, nil)
	s.batchSize = 2

	cands := make([]ScoredChunk, 5)
	if err := s.Score(context.Background(), "q", cands); err != nil {
		t.Fatalf("Score: %v", err)
	}
	if emb.calls != 4 {
		t.Errorf("Embed called %d times, want 4 (1 question + 3 batches)", emb.calls)
	}
}

func TestEmbeddingScorer_Store(t *testing.T) {
	t.Parallel()
	emb := &mapEmbedder{vecs: map[string][]float32{"question": {1, 0}}}
	store := newFakeStore()
	_ = store.Upsert(context.Background(),
		[]Document{{ID: PointID("vid", 0)}, {ID: PointID("vid", 1)}},
		[][]float32{{1, 0}, {0.6, 0.8}},
	)

	s, _ := NewEmbeddingScorer(emb, store)
	cands := []ScoredChunk{
		{Chunk: transcript.Chunk{Index: 0, Text: "a"}, VideoID: "vid"},
		{Chunk: transcript.Chunk{Index: 1, Text: "b"}, VideoID: "vid", Ordinal: 1},
		{Chunk: transcript.Chunk{Index: 2, Text: "not in store"}, VideoID: "vid", Ordinal: 2},
	}
	if err := s.Score(context.Background(), "question", cands); err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []float64{0.95, 0.3 + 0.65*0.6 - 0.001, 0.3}
	for i, w := range want {
		if math.Abs(cands[i].Score-w) > 1e-6 {
			t.Errorf("candidate %d score = %v, want %v", i, cands[i].Score, w)
		}
	}
	if emb.calls != 1 {
		t.Errorf("Embed called %d times, want 1 (question only)", emb.calls)
	}
}

// TestEmbeddingScorer_StoreIgnoresOtherVideos verifies that points of videos
// outside the candidate set, such as a failed or in-progress index, cannot
// push candidates out of the store lookup.
func TestEmbeddingScorer_StoreIgnoresOtherVideos(t *testing.T) {
	t.Parallel()
	emb := &mapEmbedder{vecs: map[string][]float32{"question": {1, 0}}}
	store := newFakeStore()
	_ = store.Upsert(context.Background(),
		[]Document{{ID: PointID("errvid", 0)}, {ID: PointID("errvid", 1)}, {ID: PointID("vid", 0)}},
		[][]float32{{1, 0}, {1, 0}, {0.99, 0.141}},
	)

	s, _ := NewEmbeddingScorer(emb, store)
	cands := []ScoredChunk{{Chunk: transcript.Chunk{Index: 0, Text: "a"}, VideoID: "vid"}}
	if err := s.Score(context.Background(), "question", cands); err != nil {
		t.Fatalf("Score: %v", err)
	}

	sim, _ := Cosine([]float32{1, 0}, []float32{0.99, 0.141})
	want := 0.3 + 0.65*sim
	if math.Abs(cands[0].Score-want) > 1e-6 {
		t.Errorf("score = %v, want %v", cands[0].Score, want)
	}
}

func TestEmbeddingScorer_Errors(t *testing.T) {
	t.Parallel()
	if _, err := NewEmbeddingScorer(nil, nil); err == nil {
		t.Error("want error for nil embedder")
	}

	boom := errors.New("embed down")
	s, _ := NewEmbeddingScorer(&mapEmbedder{err: boom}, nil)
	err := s.Score(context.Background(), "q", []ScoredChunk{{}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}

	s, _ = NewEmbeddingScorer(&mapEmbedder{err: boom}, nil)
	if err := s.Score(context.Background(), "q", nil); err != nil {
		t.Errorf("empty candidates should not embed, got %v", err)
	}
}
