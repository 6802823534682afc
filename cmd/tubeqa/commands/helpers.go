package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/tubeqa-go/internal/agent"
	"github.com/54b3r/tubeqa-go/internal/config"
	"github.com/54b3r/tubeqa-go/internal/embedder"
	"github.com/54b3r/tubeqa-go/internal/provider"
	"github.com/54b3r/tubeqa-go/internal/rag"
	"github.com/54b3r/tubeqa-go/internal/server"
	"github.com/54b3r/tubeqa-go/internal/store"
)

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// openStore opens the SQLite chunk store at TUBEQA_DB, or the default path.
func openStore(log *slog.Logger) (*store.SQLiteStore, string, error) {
	path := os.Getenv("TUBEQA_DB")
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, "", err
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, "", err
	}
	log.Debug("store: opened", slog.String("path", path))
	return db, path, nil
}

// buildVectorStore connects the configured vector backend. It returns a nil
// store when no backend is configured, plus a readiness probe for it.
func buildVectorStore(ctx context.Context, rc *config.Retrieval, log *slog.Logger) (rag.VectorStore, server.Pinger, error) {
	dims := embedder.DefaultDimensions(embedder.Backend())

	switch rc.VectorBackend {
	case config.VectorQdrant:
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", rag.DefaultCollection)
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant store ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
		return qs, server.NewQdrantPinger(qs.Client()), nil

	case config.VectorPGVector:
		ps, err := rag.NewPGVectorStore(ctx, &rag.PGVectorConfig{
			DSN:        os.Getenv("PGVECTOR_DSN"),
			Table:      os.Getenv("PGVECTOR_TABLE"),
			VectorSize: dims,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to pgvector: %w", err)
		}
		log.Info("pgvector store ready", slog.Int("dimensions", dims))
		return ps, server.NewSQLPinger("pgvector", ps.DB()), nil
	}
	return nil, nil, nil
}

// buildScorer returns the relevance scorer selected by RETRIEVAL_STRATEGY.
func buildScorer(ctx context.Context, rc *config.Retrieval, vectors rag.VectorStore, log *slog.Logger) (rag.Scorer, error) {
	if rc.Strategy == config.StrategyEmbedding {
		if err := embedder.ValidateForRAG(log); err != nil {
			return nil, err
		}
		emb, err := embedder.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise embedder: %w", err)
		}
		log.Info("scorer: embedding", slog.String("embedder", embedder.Backend()), slog.Bool("vector_store", vectors != nil))
		return rag.NewEmbeddingScorer(emb, vectors)
	}

	var kw rag.Keywords
	if rc.KeywordsFile != "" {
		var err error
		kw, err = rag.LoadKeywords(rc.KeywordsFile)
		if err != nil {
			return nil, err
		}
	}

	var jitter rag.JitterFunc
	switch {
	case !rc.Jitter:
	case rc.JitterSeed != nil:
		jitter = rag.NewSeededJitter(*rc.JitterSeed)
	default:
		jitter = rag.DefaultJitter
	}
	log.Info("scorer: heuristic",
		slog.String("keywords_file", rc.KeywordsFile),
		slog.Bool("jitter", rc.Jitter),
	)
	return rag.NewHeuristicScorer(kw, jitter), nil
}

// buildCompleter constructs the completion gateway. It returns a nil
// Completer when MODEL_PROVIDER=none; the agent then answers with the
// fallback response. The chat model is returned for readiness probing.
func buildCompleter(ctx context.Context, rc *config.Retrieval, log *slog.Logger) (agent.Completer, model.BaseChatModel, *provider.Config, error) {
	chatModel, pcfg, err := provider.NewFromEnv(ctx)
	if errors.Is(err, provider.ErrDisabled) {
		log.Warn("provider: completion disabled, answers will use the fallback response")
		return nil, nil, pcfg, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	c, err := agent.NewChatCompleter(chatModel, string(pcfg.Backend), rc.CompletionTimeout)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("provider initialised",
		slog.String("provider", string(pcfg.Backend)),
		slog.String("model", pcfg.ModelName()),
	)
	return c, chatModel, pcfg, nil
}

// stack is the wired question-answering pipeline shared by ask and serve.
type stack struct {
	// agent answers questions.
	agent *agent.Agent
	// db is the chunk store and query log.
	db *store.SQLiteStore
	// pingers probe each external dependency.
	pingers []server.Pinger
	// closers release resources in reverse order.
	closers []func()
}

// Close releases every resource held by the stack.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack wires store, vector backend, scorer, assembler, retriever,
// completion gateway and agent from the environment.
func buildStack(ctx context.Context, log *slog.Logger) (_ *stack, err error) {
	rc, err := config.RetrievalFromEnv()
	if err != nil {
		return nil, err
	}
	mode, err := agent.ParseConfidenceMode(rc.ConfidenceMode)
	if err != nil {
		return nil, err
	}

	st := &stack{}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	db, _, err := openStore(log)
	if err != nil {
		return nil, err
	}
	st.db = db
	st.closers = append(st.closers, func() { _ = db.Close() })
	st.pingers = append(st.pingers, server.NewStorePinger(db))

	var vectors rag.VectorStore
	if rc.Strategy == config.StrategyEmbedding {
		var pinger server.Pinger
		vectors, pinger, err = buildVectorStore(ctx, rc, log)
		if err != nil {
			return nil, err
		}
		if vectors != nil {
			st.closers = append(st.closers, func() { _ = vectors.Close() })
			st.pingers = append(st.pingers, pinger)
		}
	}

	scorer, err := buildScorer(ctx, rc, vectors, log)
	if err != nil {
		return nil, err
	}
	assembler, err := rag.NewAssembler(scorer, rc.MaxContextTokens)
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(db, assembler)
	if err != nil {
		return nil, err
	}

	completer, chatModel, pcfg, err := buildCompleter(ctx, rc, log)
	if err != nil {
		return nil, err
	}
	if completer != nil {
		st.pingers = append(st.pingers, server.NewLLMPinger(chatModel, provider.HealthCheckFor(pcfg), string(pcfg.Backend)))
	}

	st.agent, err = agent.New(&agent.Config{
		Retriever:       retriever,
		Completer:       completer,
		History:         db,
		ConfidenceMode:  mode,
		MaxPromptTokens: agent.PromptTokenBudget(rc.MaxContextTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise agent: %w", err)
	}
	return st, nil
}
