package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/supportrag-go/internal/answer"
	"github.com/54b3r/supportrag-go/internal/embedder"
	"github.com/54b3r/supportrag-go/internal/generator"
	"github.com/54b3r/supportrag-go/internal/index"
	"github.com/54b3r/supportrag-go/internal/ingestion"
	"github.com/54b3r/supportrag-go/internal/kb"
	"github.com/54b3r/supportrag-go/internal/provider"
	"github.com/54b3r/supportrag-go/internal/querylog"
	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/retrieval"
	"github.com/54b3r/supportrag-go/internal/server"
	"github.com/54b3r/supportrag-go/internal/support"
)

// engine bundles the constructed support service with the resources the
// commands need to check and release.
type engine struct {
	svc     *support.Service
	base    *kb.Base
	backend rag.Backend
	gen     generator.Generator
	check   provider.HealthChecker
	log     *querylog.Multi
}

// Close releases the query log sinks and the index backend.
func (e *engine) Close() error {
	return errors.Join(e.log.Close(), e.backend.Close())
}

// pingers returns the readiness checks for the configured backends.
func (e *engine) pingers() []server.Pinger {
	ps := []server.Pinger{e.base}
	switch b := e.backend.(type) {
	case *index.QdrantBackend:
		ps = append(ps, server.NewQdrantPinger(b.Client()))
	case *index.PostgresBackend:
		ps = append(ps, server.NewSQLPinger("pgvector", b.DB()))
	}
	return append(ps, server.NewLLMPinger(e.gen, e.check))
}

// buildEngine wires the full support stack from the environment. reg, when
// non-nil, receives the query log metrics.
func buildEngine(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*engine, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embBackend := embedder.Backend()
	log.Info("embedder initialised", slog.String("provider", embBackend))

	idxCfg := index.ConfigFromEnv(embedder.DefaultDimensions(embBackend))
	backend, err := index.NewBackend(ctx, idxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s index backend: %w", idxCfg.Kind, err)
	}

	base, err := kb.Open(ctx, &kb.Config{Backend: backend, Embedder: emb})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	counts, _ := base.Counts(ctx)
	log.Info("knowledge base opened",
		slog.String("backend", string(idxCfg.Kind)),
		slog.Int("faq_count", counts.FAQ),
		slog.Int("ticket_count", counts.Tickets),
	)

	gen, check, err := generator.NewFromEnv(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialise answer generator: %w", err)
	}
	log.Info("generator initialised", slog.String("backend", gen.Name()))

	composer, err := answer.New(&answer.Config{
		Generator:        gen,
		Timeout:          getEnvDuration("GENERATION_TIMEOUT", answer.DefaultTimeout),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	qlCfg := querylog.ConfigFromEnv()
	qlCfg.Logger = log
	sinks, err := querylog.Open(qlCfg, reg)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open query log: %w", err)
	}

	policy, err := policyFromEnv()
	if err != nil {
		_ = sinks.Close()
		_ = backend.Close()
		return nil, err
	}

	svc, err := support.New(&support.Config{
		Base:            base,
		Composer:        composer,
		Loader:          ingestion.NewPipeline(ingestion.ConfigFromEnv()),
		Sink:            sinks,
		Stats:           sinks,
		Mode:            policy.Mode,
		FAQThreshold:    policy.FAQThreshold,
		TicketThreshold: policy.TicketThreshold,
		SingleThreshold: policy.SingleThreshold,
		TopK:            policy.TopK,
		Parallel:        policy.Parallel,
	})
	if err != nil {
		_ = sinks.Close()
		_ = backend.Close()
		return nil, err
	}
	log.Info("support engine ready",
		slog.String("mode", string(policy.Mode)),
		slog.Float64("faq_threshold", policy.FAQThreshold),
		slog.Float64("ticket_threshold", policy.TicketThreshold),
		slog.Float64("single_threshold", policy.SingleThreshold),
	)

	return &engine{svc: svc, base: base, backend: backend, gen: gen, check: check, log: sinks}, nil
}

// policy is the retrieval policy resolved from the environment.
type policy struct {
	Mode            support.Mode
	FAQThreshold    float64
	TicketThreshold float64
	SingleThreshold float64
	TopK            int
	Parallel        bool
}

// policyFromEnv reads RETRIEVAL_MODE, FAQ_THRESHOLD, TICKET_THRESHOLD,
// SINGLE_THRESHOLD, RETRIEVAL_TOP_K and RETRIEVAL_PARALLEL.
func policyFromEnv() (policy, error) {
	mode, err := support.ParseMode(os.Getenv("RETRIEVAL_MODE"))
	if err != nil {
		return policy{}, err
	}
	p := policy{
		Mode:     mode,
		TopK:     getEnvInt("RETRIEVAL_TOP_K", retrieval.DefaultTopK),
		Parallel: os.Getenv("RETRIEVAL_PARALLEL") == "true",
	}
	thresholds := []struct {
		key string
		def float64
		dst *float64
	}{
		{"FAQ_THRESHOLD", retrieval.DefaultFAQThreshold, &p.FAQThreshold},
		{"TICKET_THRESHOLD", retrieval.DefaultTicketThreshold, &p.TicketThreshold},
		{"SINGLE_THRESHOLD", retrieval.DefaultSingleThreshold, &p.SingleThreshold},
	}
	for _, th := range thresholds {
		v, err := getEnvFloat(th.key, th.def)
		if err != nil {
			return policy{}, err
		}
		if v < 0 || v > 1 {
			return policy{}, fmt.Errorf("%s must be between 0 and 1, got %v", th.key, v)
		}
		*th.dst = v
	}
	if p.TopK < 1 || p.TopK > support.MaxTopK {
		return policy{}, fmt.Errorf("RETRIEVAL_TOP_K must be between 1 and %d, got %d", support.MaxTopK, p.TopK)
	}
	return p, nil
}

// progressPrinter reports ingestion progress on stderr.
func progressPrinter(msg string) {
	fmt.Fprintf(os.Stderr, "  %s\n", msg)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not a valid integer.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if unset. A malformed value is an error; thresholds must not be
// silently replaced.
func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

// getEnvDuration parses a Go duration such as "30s", or fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
