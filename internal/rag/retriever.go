package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/tubeqa-go/internal/logging"
)

// Retriever is the high-level interface used by the agent to fetch the
// ranked context for a question.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (*Context, error)
}

// DefaultRetriever implements Retriever by reading the current chunk
// inventory from a ChunkSource and ranking it with an Assembler.
type DefaultRetriever struct {
	// source supplies the indexed videos and their chunks.
	source ChunkSource

	// assembler scores, selects, and caps the context.
	assembler *Assembler
}

// NewRetriever constructs a DefaultRetriever.
func NewRetriever(source ChunkSource, assembler *Assembler) (*DefaultRetriever, error) {
	if source == nil {
		return nil, fmt.Errorf("rag: chunk source must not be nil")
	}
	if assembler == nil {
		return nil, fmt.Errorf("rag: assembler must not be nil")
	}
	return &DefaultRetriever{source: source, assembler: assembler}, nil
}

// Retrieve loads the indexed inventory and assembles the context for question.
func (r *DefaultRetriever) Retrieve(ctx context.Context, question string) (*Context, error) {
	start := time.Now()

	videos, err := r.source.ListIndexedVideosWithChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: listing indexed chunks failed: %w", err)
	}

	out, err := r.assembler.Assemble(ctx, question, videos)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("rag: context assembled",
		slog.Int("videos", len(videos)),
		slog.Int("candidates", out.Candidates),
		slog.Int("selected", len(out.Selected)),
		slog.Int("context_chars", len([]rune(out.Block))),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}
