package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Retrieval strategies.
const (
	StrategyHeuristic = "heuristic"
	StrategyEmbedding = "embedding"
)

// Vector backends.
const (
	VectorQdrant   = "qdrant"
	VectorPGVector = "pgvector"
)

// Retrieval is the resolved retrieval configuration, read from the
// environment after Load and LoadDotEnv have run.
type Retrieval struct {
	// Strategy is StrategyHeuristic or StrategyEmbedding.
	Strategy string
	// VectorBackend is VectorQdrant, VectorPGVector, or empty for none.
	VectorBackend string
	// KeywordsFile is an optional keyword weight file.
	KeywordsFile string
	// Jitter enables the random tie-break term in heuristic scoring.
	Jitter bool
	// JitterSeed, when non-nil, makes the jitter sequence reproducible.
	JitterSeed *uint64
	// ConfidenceMode is max, mean, or static.
	ConfidenceMode string
	// MaxContextTokens lowers the context character cap when > 0.
	MaxContextTokens int
	// CompletionTimeout bounds one completion call.
	CompletionTimeout time.Duration
}

// RetrievalFromEnv reads and validates the retrieval settings.
//
//	RETRIEVAL_STRATEGY           = heuristic | embedding   (default: heuristic)
//	VECTOR_BACKEND               = qdrant | pgvector       (default: inferred from QDRANT_HOST / PGVECTOR_DSN)
//	RETRIEVAL_KEYWORDS_FILE      = path to .toml/.yaml
//	RETRIEVAL_JITTER             = on | off                (default: on)
//	RETRIEVAL_JITTER_SEED        = uint64
//	RETRIEVAL_CONFIDENCE_MODE    = max | mean | static     (default: max)
//	RETRIEVAL_MAX_CONTEXT_TOKENS = int                     (default: 0, no token cap)
//	COMPLETION_TIMEOUT           = Go duration             (default: 60s)
func RetrievalFromEnv() (*Retrieval, error) {
	r := &Retrieval{
		Strategy:          strings.ToLower(envOr("RETRIEVAL_STRATEGY", StrategyHeuristic)),
		KeywordsFile:      os.Getenv("RETRIEVAL_KEYWORDS_FILE"),
		ConfidenceMode:    strings.ToLower(envOr("RETRIEVAL_CONFIDENCE_MODE", "max")),
		CompletionTimeout: 60 * time.Second,
	}

	switch r.Strategy {
	case StrategyHeuristic, StrategyEmbedding:
	default:
		return nil, fmt.Errorf("config: RETRIEVAL_STRATEGY %q invalid (valid: heuristic, embedding)", r.Strategy)
	}

	r.VectorBackend = strings.ToLower(os.Getenv("VECTOR_BACKEND"))
	if r.VectorBackend == "" {
		switch {
		case os.Getenv("QDRANT_HOST") != "":
			r.VectorBackend = VectorQdrant
		case os.Getenv("PGVECTOR_DSN") != "":
			r.VectorBackend = VectorPGVector
		}
	}
	switch r.VectorBackend {
	case "", VectorQdrant, VectorPGVector:
	default:
		return nil, fmt.Errorf("config: VECTOR_BACKEND %q invalid (valid: qdrant, pgvector)", r.VectorBackend)
	}
	if r.VectorBackend == VectorPGVector && os.Getenv("PGVECTOR_DSN") == "" {
		return nil, fmt.Errorf("config: PGVECTOR_DSN is required for VECTOR_BACKEND=pgvector")
	}

	switch v := strings.ToLower(envOr("RETRIEVAL_JITTER", "on")); v {
	case "on", "true", "1":
		r.Jitter = true
	case "off", "false", "0":
	default:
		return nil, fmt.Errorf("config: RETRIEVAL_JITTER %q invalid (valid: on, off)", v)
	}

	if v := os.Getenv("RETRIEVAL_JITTER_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: RETRIEVAL_JITTER_SEED: %w", err)
		}
		r.JitterSeed = &seed
	}

	if v := os.Getenv("RETRIEVAL_MAX_CONTEXT_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("config: RETRIEVAL_MAX_CONTEXT_TOKENS %q must be a non-negative integer", v)
		}
		r.MaxContextTokens = n
	}

	if v := os.Getenv("COMPLETION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("config: COMPLETION_TIMEOUT %q must be a positive duration", v)
		}
		r.CompletionTimeout = d
	}
	return r, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
