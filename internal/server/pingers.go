package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/tubeqa-go/internal/logging"
	"github.com/54b3r/tubeqa-go/internal/provider"
)

// LLMPinger probes the completion backend. It satisfies the Pinger interface
// and is used by GET /api/ready.
type LLMPinger struct {
	// healthCheck is the zero-cost probe for the backend, if it has one.
	healthCheck provider.HealthCheckConfig
	// model is probed with a one-word Generate call when healthCheck is nil.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil, in which case m is
// probed with a Generate call.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness. The HealthCheckConfig is used
// when present; otherwise a single Generate call is made, which spends tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return errors.New("no model configured")
	}

	logging.FromContext(ctx).Warn("pinger: falling back to Generate-based health check, tokens will be consumed",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return errors.New("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SQLPinger probes a database/sql pool, such as the pgvector connection.
type SQLPinger struct {
	// db is the pool to probe.
	db *sql.DB
	// name identifies the database in readiness responses.
	name string
}

// NewSQLPinger constructs a SQLPinger labelled name.
func NewSQLPinger(name string, db *sql.DB) *SQLPinger {
	return &SQLPinger{db: db, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *SQLPinger) Name() string { return p.name }

// Ping calls PingContext on the pool.
func (p *SQLPinger) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// StorePinger probes the chunk store.
type StorePinger struct {
	// store is the chunk store to probe.
	store interface{ Ping(ctx context.Context) error }
}

// NewStorePinger constructs a StorePinger. *store.SQLiteStore satisfies the
// argument.
func NewStorePinger(s interface{ Ping(ctx context.Context) error }) *StorePinger {
	return &StorePinger{store: s}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "sqlite" }

// Ping checks the chunk store connection.
func (p *StorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
