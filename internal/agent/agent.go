// Package agent composes answers: it retrieves ranked transcript context,
// calls the completion gateway, and packages the answer with source
// citations, an overall confidence, and the elapsed time.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/tubeqa-go/internal/budget"
	"github.com/54b3r/tubeqa-go/internal/logging"
	"github.com/54b3r/tubeqa-go/internal/rag"
	"github.com/54b3r/tubeqa-go/internal/store"
)

// ErrCompletionFailed is the single user-facing failure for a failed
// completion call. The wrapped chain carries the *GatewayError.
var ErrCompletionFailed = errors.New("failed to process query")

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("agent: question must not be empty")

const (
	fallbackConfidence = 75
	staticConfidence   = 90
)

// ConfidenceMode selects how the overall confidence is derived from the
// per-source confidences after a successful completion.
type ConfidenceMode string

const (
	// ConfidenceMax uses the best source's confidence.
	ConfidenceMax ConfidenceMode = "max"
	// ConfidenceMean uses the rounded mean of source confidences.
	ConfidenceMean ConfidenceMode = "mean"
	// ConfidenceStatic always reports 90.
	ConfidenceStatic ConfidenceMode = "static"
)

// ParseConfidenceMode validates s. An empty string selects ConfidenceMax.
func ParseConfidenceMode(s string) (ConfidenceMode, error) {
	switch m := ConfidenceMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ConfidenceMax, nil
	case ConfidenceMax, ConfidenceMean, ConfidenceStatic:
		return m, nil
	default:
		return "", fmt.Errorf("agent: unknown confidence mode %q (want max, mean or static)", s)
	}
}

// Response is the answer returned to callers.
type Response struct {
	// Response is the answer text.
	Response string `json:"response"`
	// SourceContexts are the citations, best first, or a single placeholder.
	SourceContexts []rag.SourceContext `json:"sourceContexts"`
	// Confidence is the overall 0–100 confidence.
	Confidence int `json:"confidence"`
	// ResponseTimeMs is the wall-clock time from receipt to answer.
	ResponseTimeMs int64 `json:"responseTimeMs"`
	// Fallback is true when no completion backend was configured.
	Fallback bool `json:"-"`
}

// Config holds the dependencies required to construct an Agent.
type Config struct {
	// Retriever supplies the ranked context. Required.
	Retriever rag.Retriever

	// Completer is the completion gateway. Nil means no backend is
	// configured and every question gets the fallback answer.
	Completer Completer

	// History is the optional query log. Persistence failures are logged
	// and never fail the answer.
	History store.QueryLog

	// ConfidenceMode selects the overall confidence rule. Defaults to max.
	ConfidenceMode ConfidenceMode

	// MaxPromptTokens is the estimated prompt size above which a warning is
	// logged. Defaults to budget.DefaultMaxContextTokens.
	MaxPromptTokens int
}

// Agent answers questions over the indexed transcripts.
type Agent struct {
	// retriever supplies the ranked context.
	retriever rag.Retriever

	// completer is the completion gateway; nil selects the fallback answer.
	completer Completer

	// history is the optional query log.
	history store.QueryLog

	// mode is the overall confidence rule.
	mode ConfidenceMode

	// maxPromptTokens is the prompt size warning threshold.
	maxPromptTokens int

	// now is the clock used for response timing.
	now func() time.Time
}

// New constructs an Agent from cfg.
func New(cfg *Config) (*Agent, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("agent: Retriever must not be nil")
	}
	mode, err := ParseConfidenceMode(string(cfg.ConfidenceMode))
	if err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxPromptTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &Agent{
		retriever:       cfg.Retriever,
		completer:       cfg.Completer,
		history:         cfg.History,
		mode:            mode,
		maxPromptTokens: maxTokens,
		now:             time.Now,
	}, nil
}

// Available reports whether a completion backend is configured.
func (a *Agent) Available() bool { return a.completer != nil }

// Answer retrieves context for question, calls the completion gateway, and
// returns the composed Response. A gateway failure returns an error wrapping
// ErrCompletionFailed and no sources.
func (a *Agent) Answer(ctx context.Context, question string) (*Response, error) {
	start := a.now()
	logger := logging.FromContext(ctx)

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if a.completer == nil {
		resp := &Response{
			Response:       fallbackAnswer(question),
			SourceContexts: []rag.SourceContext{fallbackSource()},
			Confidence:     fallbackConfidence,
			Fallback:       true,
		}
		resp.ResponseTimeMs = a.now().Sub(start).Milliseconds()
		logger.Info("agent: no completion backend configured, returned fallback answer")
		a.record(ctx, question, resp)
		return resp, nil
	}

	rc, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("agent: retrieval failed: %w", err)
	}

	system := buildSystemPrompt(rc.Block)
	user := buildUserPrompt(question)
	if est := budget.EstimateMessages([]*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)}); est > a.maxPromptTokens {
		logger.Warn("budget: prompt exceeds token budget",
			slog.Int("estimated_tokens", est),
			slog.Int("max_tokens", a.maxPromptTokens),
		)
	}

	text, err := a.completer.Complete(ctx, system, user)
	if err != nil {
		logger.Error("agent: completion failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	resp := &Response{Response: text}
	if rc.Empty() {
		resp.SourceContexts = []rag.SourceContext{emptyIndexSource()}
		resp.Confidence = 0
	} else {
		resp.SourceContexts = rc.Sources
		resp.Confidence = overallConfidence(a.mode, rc.Sources)
	}
	resp.ResponseTimeMs = a.now().Sub(start).Milliseconds()

	logger.Info("agent: answered",
		slog.Int("sources", len(rc.Sources)),
		slog.Int("confidence", resp.Confidence),
		slog.Int64("response_time_ms", resp.ResponseTimeMs),
	)
	a.record(ctx, question, resp)
	return resp, nil
}

// record persists the answered query. Failures are logged only.
func (a *Agent) record(ctx context.Context, question string, resp *Response) {
	if a.history == nil {
		return
	}
	sources, err := json.Marshal(resp.SourceContexts)
	if err != nil {
		logging.FromContext(ctx).Warn("history: failed to encode sources", slog.Any("error", err))
		return
	}
	err = a.history.RecordQuery(ctx, store.QueryRecord{
		Question:       question,
		Response:       resp.Response,
		Confidence:     resp.Confidence,
		Sources:        sources,
		ResponseTimeMs: resp.ResponseTimeMs,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist query", slog.Any("error", err))
	}
}

// overallConfidence applies mode to a non-empty source list.
func overallConfidence(mode ConfidenceMode, sources []rag.SourceContext) int {
	switch mode {
	case ConfidenceStatic:
		return staticConfidence
	case ConfidenceMean:
		sum := 0
		for _, s := range sources {
			sum += s.Confidence
		}
		return (sum + len(sources)/2) / len(sources)
	default:
		best := 0
		for _, s := range sources {
			best = max(best, s.Confidence)
		}
		return best
	}
}

// fallbackSource is the single citation attached to a fallback answer.
func fallbackSource() rag.SourceContext {
	return rag.SourceContext{
		VideoTitle: "Language model unavailable",
		Timestamp:  "0:00",
		Excerpt:    "This answer was not generated from the indexed transcripts.",
		Confidence: fallbackConfidence,
		Relevance:  rag.RelevanceMedium,
	}
}

// emptyIndexSource is the single citation attached when nothing is indexed.
func emptyIndexSource() rag.SourceContext {
	return rag.SourceContext{
		VideoTitle: "No sources available",
		Timestamp:  "0:00",
		Excerpt:    "No indexed video transcripts were available for this question.",
		Confidence: 0,
		Relevance:  rag.RelevanceLow,
	}
}
