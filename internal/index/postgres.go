package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/supportrag-go/internal/rag"
)

const postgresDDL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS support_records (
    store       TEXT   NOT NULL,
    generation  BIGINT NOT NULL,
    seq         BIGSERIAL,
    record_id   TEXT   NOT NULL,
    record      JSONB  NOT NULL,
    embedding   vector NOT NULL,
    PRIMARY KEY (store, generation, record_id)
);
CREATE TABLE IF NOT EXISTS support_generations (
    store       TEXT   PRIMARY KEY,
    generation  BIGINT NOT NULL
);
`

// PostgresBackend keeps every store in one pgvector table, partitioned by
// store name and generation. The live generation per store is recorded in
// support_generations; a commit moves that pointer and Discard deletes the
// rows of a generation that is no longer live.
type PostgresBackend struct {
	db *sql.DB

	mu   sync.Mutex
	live map[string]int64
}

// NewPostgresBackend opens dsn and applies the schema.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: migrate: %w", err)
	}
	return &PostgresBackend{db: db, live: make(map[string]int64)}, nil
}

// DB exposes the connection pool for readiness checks.
func (b *PostgresBackend) DB() *sql.DB { return b.db }

// Open implements rag.Backend.
func (b *PostgresBackend) Open(ctx context.Context, name string) (rag.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen, ok := b.live[name]; ok {
		return &PostgresIndex{db: b.db, store: name, generation: gen}, nil
	}

	var gen int64
	err := b.db.QueryRowContext(ctx,
		`SELECT generation FROM support_generations WHERE store = $1`, name).Scan(&gen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		gen = time.Now().UnixNano()
		if _, err := b.db.ExecContext(ctx,
			`INSERT INTO support_generations (store, generation) VALUES ($1, $2) ON CONFLICT (store) DO NOTHING`,
			name, gen); err != nil {
			return nil, fmt.Errorf("pgvector: register %s: %w", name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("pgvector: read generation for %s: %w", name, err)
	}
	b.live[name] = gen
	return &PostgresIndex{db: b.db, store: name, generation: gen}, nil
}

// Stage implements rag.Backend.
func (b *PostgresBackend) Stage(_ context.Context, name string) (rag.Index, error) {
	return &PostgresIndex{db: b.db, store: name, generation: time.Now().UnixNano()}, nil
}

// Commit implements rag.Backend.
func (b *PostgresBackend) Commit(ctx context.Context, name string, idx rag.Index) error {
	p, ok := idx.(*PostgresIndex)
	if !ok {
		return fmt.Errorf("pgvector: cannot commit %T", idx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.live[name] == p.generation {
		return nil
	}

	if _, err := b.db.ExecContext(ctx, `
INSERT INTO support_generations (store, generation) VALUES ($1, $2)
ON CONFLICT (store) DO UPDATE SET generation = EXCLUDED.generation`, name, p.generation); err != nil {
		return fmt.Errorf("pgvector: swap generation for %s: %w", name, err)
	}
	b.live[name] = p.generation
	return nil
}

// Discard implements rag.Backend.
func (b *PostgresBackend) Discard(ctx context.Context, name string, idx rag.Index) error {
	p, ok := idx.(*PostgresIndex)
	if !ok {
		return fmt.Errorf("pgvector: cannot discard %T", idx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.live[name] == p.generation {
		return nil
	}
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM support_records WHERE store = $1 AND generation = $2`, name, p.generation); err != nil {
		return fmt.Errorf("pgvector: drop generation of %s: %w", name, err)
	}
	return nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

// PostgresIndex is a rag.Index over one store generation.
type PostgresIndex struct {
	db         *sql.DB
	store      string
	generation int64
}

// Add implements rag.Index.
func (p *PostgresIndex) Add(ctx context.Context, recs []rag.Record, vecs [][]float32) error {
	if len(recs) != len(vecs) {
		return fmt.Errorf("pgvector: %d records but %d vectors", len(recs), len(vecs))
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO support_records (store, generation, record_id, record, embedding)
VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("pgvector: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("pgvector: encode record %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.store, p.generation, rec.ID, string(raw), pgvector.NewVector(vecs[i])); err != nil {
			return fmt.Errorf("pgvector: insert %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

// Remove implements rag.Index.
func (p *PostgresIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM support_records WHERE store = $1 AND generation = $2 AND record_id = ANY($3)`,
		p.store, p.generation, pq.Array(ids)); err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	return nil
}

// Search implements rag.Index. Cosine distance from the <=> operator is
// converted back to a similarity; ties fall back to insertion order.
func (p *PostgresIndex) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	if k <= 0 {
		return []rag.Hit{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT record, 1 - (embedding <=> $1) AS cosine
FROM   support_records
WHERE  store = $2 AND generation = $3
ORDER  BY embedding <=> $1, seq
LIMIT  $4`, pgvector.NewVector(query), p.store, p.generation, k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}
	defer rows.Close()

	hits := []rag.Hit{}
	for rows.Next() {
		var raw []byte
		var cosine float64
		if err := rows.Scan(&raw, &cosine); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		var rec rag.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("pgvector: decode record: %w", err)
		}
		hits = append(hits, rag.Hit{Record: rec, Similarity: rag.Similarity(cosine)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return hits, nil
}

// Len implements rag.Index.
func (p *PostgresIndex) Len(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM support_records WHERE store = $1 AND generation = $2`,
		p.store, p.generation).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}
	return n, nil
}
