package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/supportrag-go/internal/generator"
	"github.com/54b3r/supportrag-go/internal/provider"
)

// LLMPinger checks the answer-generation backend. It satisfies the Pinger
// interface and is used by GET /api/ready.
type LLMPinger struct {
	// check is the zero-cost provider check; nil when the backend has none.
	check provider.HealthChecker
	// gen is checked with a one-word prompt when check is nil.
	gen generator.Generator
}

// NewLLMPinger constructs an LLMPinger. check may be nil.
func NewLLMPinger(gen generator.Generator, check provider.HealthChecker) *LLMPinger {
	return &LLMPinger{check: check, gen: gen}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return "llm:" + p.gen.Name() }

// Optional reports that a failing LLM degrades answers without making the
// service unready: the composer falls back to retrieved context.
func (p *LLMPinger) Optional() bool { return true }

// Ping checks the LLM backend for readiness. When a zero-cost health check
// is available it is used exclusively; otherwise it falls back to a tiny
// Generate call, which consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.check != nil {
		if err := p.check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.gen.Name(), err)
		}
		return nil
	}

	slog.Warn("pinger: falling back to Generate-based health check, tokens will be consumed",
		slog.String("backend", p.gen.Name()),
	)
	if _, err := p.gen.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

// QdrantPinger checks a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to check.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SQLPinger checks a database/sql connection pool (pgvector backend).
type SQLPinger struct {
	name string
	db   interface {
		PingContext(ctx context.Context) error
	}
}

// NewSQLPinger constructs a SQLPinger labelled name.
func NewSQLPinger(name string, db interface {
	PingContext(ctx context.Context) error
}) *SQLPinger {
	return &SQLPinger{name: name, db: db}
}

// Name returns the dependency label used in readiness responses.
func (p *SQLPinger) Name() string { return p.name }

// Ping checks the pool can reach the database.
func (p *SQLPinger) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
