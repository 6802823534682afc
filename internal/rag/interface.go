// Package rag implements the retrieval core: it scores transcript chunks
// against a question, ranks them across every indexed video, and assembles a
// bounded context block plus source citations for the completion step.
// Vector backends (Qdrant, pgvector) and embedders satisfy the interfaces in
// this file so the agent layer never depends on a specific backend.
package rag

import (
	"context"

	"github.com/54b3r/tubeqa-go/internal/transcript"
)

// Document is a chunk as stored in, or returned from, a vector backend.
type Document struct {
	// ID is the deterministic point identifier for this chunk (see PointID).
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the timestamped watch URL of the chunk (see transcript.WatchURL).
	Source string

	// Metadata holds extra key-value pairs (chunk index, start time, title).
	Metadata map[string]string

	// Score is the cosine similarity assigned during search.
	// Zero value means the score was not computed.
	Score float32
}

// VectorStore persists and searches chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their embeddings.
	// embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns the topK documents most similar to queryEmbedding,
	// with Score set to cosine similarity.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// SearchIDs scores queryEmbedding against the listed points only, with
	// Score set to cosine similarity. IDs absent from the store are skipped.
	SearchIDs(ctx context.Context, queryEmbedding []float32, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into embeddings parallel to texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkSource is the read side of the chunk store. It returns a point-in-time
// snapshot of every indexed video with its chunks in index order.
type ChunkSource interface {
	ListIndexedVideosWithChunks(ctx context.Context) ([]transcript.VideoChunks, error)
}

// Scorer assigns a relevance score in [MinScore, MaxScore] to every candidate.
// It writes candidates[i].Score in place and must not reorder the slice.
type Scorer interface {
	Score(ctx context.Context, question string, candidates []ScoredChunk) error
}

// ScoredChunk is a chunk paired with its owning video and its relevance
// score for the current question. It is request-local and never persisted.
type ScoredChunk struct {
	transcript.Chunk

	// Score is the relevance score in [MinScore, MaxScore].
	Score float64

	// VideoTitle is the owning video's display title.
	VideoTitle string

	// VideoID is the owning video's YouTube ID.
	VideoID string

	// Ordinal is the chunk's position within its video, used for the
	// earlier-chunk tie-break penalty.
	Ordinal int
}
