package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVectorConfig holds connection parameters for a Postgres+pgvector store.
type PGVectorConfig struct {
	// DSN is the lib/pq connection string.
	DSN string

	// Table is the table holding chunk vectors (default: tubeqa_chunks).
	Table string

	// VectorSize is the embedding dimensionality of the vector column.
	VectorSize int
}

// PGVectorStore implements VectorStore on Postgres with the pgvector extension.
type PGVectorStore struct {
	db    *sql.DB
	table string
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPGVectorStore opens the database, enables the vector extension, and
// creates the chunk table when it does not exist yet.
func NewPGVectorStore(ctx context.Context, cfg *PGVectorConfig) (*PGVectorStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: DSN must not be empty")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultCollection
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("pgvector: vector size must be positive, got %d", cfg.VectorSize)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	s := &PGVectorStore{db: db, table: cfg.Table}
	if err := s.migrate(ctx, cfg.VectorSize); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for readiness probes.
func (s *PGVectorStore) DB() *sql.DB { return s.db }

func (s *PGVectorStore) migrate(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        UUID PRIMARY KEY,
			source    TEXT NOT NULL,
			content   TEXT NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, s.table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: migrate: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces chunk rows in a single transaction.
func (s *PGVectorStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("pgvector: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := fmt.Sprintf(`INSERT INTO %s (id, source, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: marshal metadata for %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx, q, doc.ID, doc.Source, doc.Content, meta, pgvector.NewVector(embeddings[i])); err != nil {
			return fmt.Errorf("pgvector: upsert %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

// Search returns the topK rows nearest to queryEmbedding by cosine distance,
// with Score set to cosine similarity.
func (s *PGVectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	q := fmt.Sprintf(`SELECT id, source, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	return scanDocuments(rows)
}

// SearchIDs returns the rows whose id is in ids, with Score set to cosine
// similarity against queryEmbedding.
func (s *PGVectorStore) SearchIDs(ctx context.Context, queryEmbedding []float32, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT id, source, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE id = ANY($2::uuid[])
		ORDER BY embedding <=> $1`, s.table)

	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(queryEmbedding), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("pgvector: search ids: %w", err)
	}
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d    Document
			meta []byte
			sim  float64
		)
		if err := rows.Scan(&d.ID, &d.Source, &d.Content, &meta, &sim); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Metadata); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata for %s: %w", d.ID, err)
			}
		}
		d.Score = float32(sim)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return docs, nil
}

// Delete removes rows by ID.
func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::uuid[])`, s.table)
	if _, err := s.db.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
