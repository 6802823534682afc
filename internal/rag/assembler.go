package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/tubeqa-go/internal/budget"
	"github.com/54b3r/tubeqa-go/internal/logging"
	"github.com/54b3r/tubeqa-go/internal/transcript"
)

const (
	// TopK is the number of chunks selected for every question.
	TopK = 3
	// MaxChunkChars bounds each selected chunk's text in the context block.
	MaxChunkChars = 600
	// MaxContextChars bounds the whole context block, marker included.
	MaxContextChars = 15000
	// ExcerptChars bounds the excerpt shown in each SourceContext.
	ExcerptChars = 150

	ellipsis        = "..."
	truncatedMarker = "\n[context truncated]"
)

// Relevance is the coarse label attached to a SourceContext.
type Relevance string

const (
	RelevanceHigh   Relevance = "High"
	RelevanceMedium Relevance = "Medium"
	RelevanceLow    Relevance = "Low"
)

// RelevanceFor labels a score: above 0.7 is High, above 0.4 Medium, else Low.
func RelevanceFor(score float64) Relevance {
	switch {
	case score > 0.7:
		return RelevanceHigh
	case score > 0.4:
		return RelevanceMedium
	default:
		return RelevanceLow
	}
}

// SourceContext is a user-facing citation pointing back to a video moment.
type SourceContext struct {
	VideoTitle string    `json:"videoTitle"`
	VideoID    string    `json:"videoId"`
	Timestamp  string    `json:"timestamp"`
	Excerpt    string    `json:"excerpt"`
	Confidence int       `json:"confidence"`
	Relevance  Relevance `json:"relevance"`
	YouTubeURL string    `json:"youtubeUrl"`
}

// Context is the output of Assemble: the prompt context block and the
// citations parallel to the selected chunks.
type Context struct {
	// Block is the budget-capped context handed to the completion step.
	// Empty when nothing is indexed.
	Block string

	// Sources holds one citation per selected chunk, best first.
	Sources []SourceContext

	// Selected holds the chosen chunks with their untruncated text.
	Selected []ScoredChunk

	// Candidates is the number of chunks that were scored.
	Candidates int
}

// Empty reports whether no chunk was selected.
func (c *Context) Empty() bool { return len(c.Selected) == 0 }

// Assembler ranks chunks across all indexed videos and builds the bounded
// context block. It holds no per-request state and is safe for concurrent use.
type Assembler struct {
	// scorer assigns relevance scores to candidates.
	scorer Scorer

	// maxContextChars is the effective block cap, at most MaxContextChars.
	maxContextChars int
}

// NewAssembler constructs an Assembler. maxContextTokens, when positive,
// lowers the character cap to the equivalent token budget; it can never
// raise it above MaxContextChars.
func NewAssembler(scorer Scorer, maxContextTokens int) (*Assembler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("rag: scorer must not be nil")
	}
	capChars := budget.CharCap(maxContextTokens, MaxContextChars)
	if capChars <= utf8.RuneCountInString(truncatedMarker) {
		return nil, fmt.Errorf("rag: context token budget %d is too small", maxContextTokens)
	}
	return &Assembler{scorer: scorer, maxContextChars: capChars}, nil
}

// MaxContextChars returns the effective character cap for context blocks.
func (a *Assembler) MaxContextChars() int { return a.maxContextChars }

// Assemble scores every chunk of every indexed video, keeps the TopK best
// across all videos, and builds the context block and citations. Videos not
// in the indexed state are skipped. An empty inventory yields an empty
// Context and no error.
func (a *Assembler) Assemble(ctx context.Context, question string, videos []transcript.VideoChunks) (*Context, error) {
	var candidates []ScoredChunk
	for _, vc := range videos {
		if vc.Video.Status != transcript.StatusIndexed {
			continue
		}
		for ord, ch := range vc.Chunks {
			candidates = append(candidates, ScoredChunk{
				Chunk:      ch,
				VideoTitle: vc.Video.Title,
				VideoID:    vc.Video.YouTubeID,
				Ordinal:    ord,
			})
		}
	}

	out := &Context{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return out, nil
	}

	if err := a.scorer.Score(ctx, question, candidates); err != nil {
		return nil, fmt.Errorf("rag: scoring failed: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	out.Selected = candidates[:min(TopK, len(candidates))]
	out.Block = a.buildBlock(out.Selected)
	out.Sources = buildSources(ctx, out.Selected)
	return out, nil
}

// buildBlock renders the selected chunks and applies the context cap.
func (a *Assembler) buildBlock(selected []ScoredChunk) string {
	parts := make([]string, 0, len(selected))
	for _, sc := range selected {
		text, _ := truncateWithEllipsis(sc.Text, MaxChunkChars)
		parts = append(parts, fmt.Sprintf("[%s @ %s]\n%s", sc.VideoTitle, sc.StartTime, text))
	}
	return capBlock(strings.Join(parts, "\n\n"), a.maxContextChars)
}

// capBlock hard-truncates block so that block plus the truncation marker
// fits in limit characters.
func capBlock(block string, limit int) string {
	if utf8.RuneCountInString(block) <= limit {
		return block
	}
	keep := limit - utf8.RuneCountInString(truncatedMarker)
	head, _ := budget.Truncate(block, keep)
	return head + truncatedMarker
}

// buildSources produces one citation per selected chunk.
func buildSources(ctx context.Context, selected []ScoredChunk) []SourceContext {
	logger := logging.FromContext(ctx)
	sources := make([]SourceContext, 0, len(selected))
	for _, sc := range selected {
		secs, err := transcript.ParseTimestamp(sc.StartTime)
		if err != nil {
			logger.Debug("rag: malformed chunk start time, linking to 0s",
				slog.String("video_id", sc.VideoID),
				slog.Int("chunk_index", sc.Index),
				slog.String("start_time", sc.StartTime),
			)
			secs = 0
		}
		shown, _ := truncateWithEllipsis(sc.Text, MaxChunkChars)
		excerpt, _ := truncateWithEllipsis(shown, ExcerptChars)
		sources = append(sources, SourceContext{
			VideoTitle: sc.VideoTitle,
			VideoID:    sc.VideoID,
			Timestamp:  sc.StartTime,
			Excerpt:    excerpt,
			Confidence: ConfidenceFor(sc.Score),
			Relevance:  RelevanceFor(sc.Score),
			YouTubeURL: transcript.WatchURL(sc.VideoID, secs),
		})
	}
	return sources
}

// ConfidenceFor converts a score to a 0–100 integer confidence.
func ConfidenceFor(score float64) int {
	return int(math.Round(score * 100))
}

// truncateWithEllipsis cuts s to n runes and appends an ellipsis if it was cut.
func truncateWithEllipsis(s string, n int) (string, bool) {
	head, cut := budget.Truncate(s, n)
	if cut {
		return head + ellipsis, true
	}
	return head, false
}
