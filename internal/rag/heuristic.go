package rag

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const (
	// MinScore is the floor every scored chunk is clamped to.
	MinScore = 0.3
	// MaxScore is the ceiling every scored chunk is clamped to.
	MaxScore = 0.95

	phraseBonus   = 0.4
	tokenBonus    = 0.08
	densityWeight = 0.1
	jitterSpan    = 0.01
	ordinalStep   = 0.001
	minTokenRunes = 3
)

// JitterFunc returns a value in [0, 1). It must be safe for concurrent use.
type JitterFunc func() float64

// DefaultJitter draws from the global math/rand/v2 source.
func DefaultJitter() float64 { return rand.Float64() }

// NewSeededJitter returns a reproducible JitterFunc. The underlying PCG
// source is shared between requests, so access is serialised.
func NewSeededJitter(seed uint64) JitterFunc {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Float64()
	}
}

// HeuristicScorer is the default lexical relevance scorer. It combines an
// exact-phrase bonus, per-token matches, domain keyword bonuses, and a match
// density bonus, then applies jitter and an ordinal penalty.
type HeuristicScorer struct {
	// keywords are the domain bonus terms, sorted by term so the summation
	// order is fixed.
	keywords []keywordWeight

	// jitter breaks ties between otherwise equal chunks. Nil disables it.
	jitter JitterFunc
}

type keywordWeight struct {
	term   string
	weight float64
}

// NewHeuristicScorer builds a scorer over kw. A nil kw uses DefaultKeywords;
// an empty non-nil kw disables keyword bonuses. A nil jitter disables jitter.
func NewHeuristicScorer(kw Keywords, jitter JitterFunc) *HeuristicScorer {
	if kw == nil {
		kw = DefaultKeywords()
	}
	list := make([]keywordWeight, 0, len(kw))
	for term, w := range kw {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		list = append(list, keywordWeight{term: term, weight: w})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].term < list[j].term })
	return &HeuristicScorer{keywords: list, jitter: jitter}
}

// Score implements Scorer. It never fails.
func (s *HeuristicScorer) Score(_ context.Context, question string, candidates []ScoredChunk) error {
	for i := range candidates {
		candidates[i].Score = s.ScoreChunk(question, candidates[i].Text, candidates[i].Ordinal)
	}
	return nil
}

// ScoreChunk scores a single chunk text against question. ordinal is the
// chunk's position within its video.
func (s *HeuristicScorer) ScoreChunk(question, text string, ordinal int) float64 {
	q := strings.ToLower(strings.TrimSpace(question))
	body := strings.ToLower(text)
	tokens := tokenize(q)

	score := MinScore

	if q != "" && strings.Contains(body, q) {
		score += phraseBonus
	}

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(body, tok) {
			matched++
		}
	}
	score += float64(matched) * tokenBonus

	for _, kw := range s.keywords {
		if strings.Contains(q, kw.term) && strings.Contains(body, kw.term) {
			score += kw.weight
		}
	}

	if len(tokens) > 0 {
		score += float64(matched) / float64(len(tokens)) * densityWeight
	}

	if s.jitter != nil {
		score += (s.jitter()*2 - 1) * jitterSpan
	}

	score -= float64(ordinal) * ordinalStep

	return clamp(score)
}

// tokenize splits a lowercased question into words, trims surrounding
// punctuation, and drops words shorter than minTokenRunes.
func tokenize(q string) []string {
	fields := strings.Fields(q)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(f) < minTokenRunes {
			continue
		}
		out = append(out, f)
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
