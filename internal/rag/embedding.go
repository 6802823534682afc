package rag

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// similaritySpan maps cosine similarity in [0,1] onto [MinScore, MinScore+span].
const similaritySpan = 0.65

// defaultEmbedBatch bounds the number of texts sent per Embed call.
const defaultEmbedBatch = 64

// pointNamespace scopes chunk point IDs so they never collide with other
// UUIDv5 users of the same collection.
var pointNamespace = uuid.MustParse("6f1c1d5e-8f0b-4b52-9a57-3c3f0f6e2a10")

// PointID returns the deterministic vector-store ID for chunk index of the
// given YouTube video. Re-indexing a video overwrites its points in place.
func PointID(videoID string, index int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s#%d", videoID, index)).String()
}

// EmbeddingScorer scores chunks by cosine similarity between the question
// embedding and each chunk embedding. When a VectorStore is configured the
// similarities come from the store; otherwise chunk texts are embedded on
// the fly and compared locally.
type EmbeddingScorer struct {
	// embedder converts the question (and, without a store, chunk texts) to vectors.
	embedder Embedder

	// store is the optional vector backend holding pre-computed chunk vectors.
	store VectorStore

	// batchSize caps texts per Embed call when embedding chunks locally.
	batchSize int
}

// NewEmbeddingScorer constructs an EmbeddingScorer. store may be nil.
func NewEmbeddingScorer(embedder Embedder, store VectorStore) (*EmbeddingScorer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	return &EmbeddingScorer{embedder: embedder, store: store, batchSize: defaultEmbedBatch}, nil
}

// Score implements Scorer.
func (s *EmbeddingScorer) Score(ctx context.Context, question string, candidates []ScoredChunk) error {
	if len(candidates) == 0 {
		return nil
	}

	qv, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return fmt.Errorf("rag: embedding question failed: %w", err)
	}
	if len(qv) == 0 {
		return fmt.Errorf("rag: embedder returned empty result for question")
	}

	var sims []float64
	if s.store != nil {
		sims, err = s.storeSimilarities(ctx, qv[0], candidates)
	} else {
		sims, err = s.localSimilarities(ctx, qv[0], candidates)
	}
	if err != nil {
		return err
	}

	for i := range candidates {
		v := MinScore + similaritySpan*math.Max(sims[i], 0)
		v -= float64(candidates[i].Ordinal) * ordinalStep
		candidates[i].Score = clamp(v)
	}
	return nil
}

// storeSimilarities asks the vector store for every candidate's similarity,
// restricted to the candidates' own points. Candidates without a stored
// vector score zero.
func (s *EmbeddingScorer) storeSimilarities(ctx context.Context, qv []float32, candidates []ScoredChunk) ([]float64, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = PointID(c.VideoID, c.Index)
	}
	docs, err := s.store.SearchIDs(ctx, qv, ids)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	byID := make(map[string]float64, len(docs))
	for _, d := range docs {
		byID[d.ID] = float64(d.Score)
	}
	sims := make([]float64, len(candidates))
	for i, id := range ids {
		sims[i] = byID[id]
	}
	return sims, nil
}

// localSimilarities embeds candidate texts in batches and compares them to qv.
func (s *EmbeddingScorer) localSimilarities(ctx context.Context, qv []float32, candidates []ScoredChunk) ([]float64, error) {
	sims := make([]float64, 0, len(candidates))
	for start := 0; start < len(candidates); start += s.batchSize {
		end := min(start+s.batchSize, len(candidates))
		texts := make([]string, 0, end-start)
		for _, c := range candidates[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("rag: embedding chunks failed: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("rag: embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for _, v := range vecs {
			sim, err := Cosine(qv, v)
			if err != nil {
				return nil, err
			}
			sims = append(sims, sim)
		}
	}
	return sims, nil
}

// ErrDimensionMismatch is returned by Cosine for vectors of different length.
var ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
