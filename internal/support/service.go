// Package support orchestrates a customer query end to end: validate,
// retrieve through the tier policy, compose the answer and record the query
// log entry. It also owns ingestion into the knowledge base so the HTTP
// server, the CLI and the MCP tools share one code path.
package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/54b3r/supportrag-go/internal/answer"
	"github.com/54b3r/supportrag-go/internal/ingestion"
	"github.com/54b3r/supportrag-go/internal/kb"
	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/querylog"
	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/retrieval"
)

// Request limits.
const (
	MaxQuestionLength = 1000
	MaxTopK           = 10
)

// ErrNotReady is returned by Query before any store has been loaded.
var ErrNotReady = errors.New("support: knowledge base not initialized, run ingestion first")

// Mode selects the retrieval chain.
type Mode string

const (
	// ModeDual answers from FAQs, then tickets, then escalates.
	ModeDual Mode = "dual"
	// ModeSingle answers from FAQs or escalates.
	ModeSingle Mode = "single"
)

// ParseMode maps a config value to a Mode. Empty means dual.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDual:
		return ModeDual, nil
	case ModeSingle:
		return ModeSingle, nil
	default:
		return "", fmt.Errorf("support: unknown retrieval mode %q (want dual or single)", s)
	}
}

// Loader produces the corpus for a rebuild.
type Loader interface {
	Load(ctx context.Context, progress func(msg string)) (*ingestion.Corpus, error)
}

// Config holds service dependencies and retrieval policy.
type Config struct {
	Base     *kb.Base
	Composer *answer.Composer
	// Loader is required for Ingest.
	Loader Loader
	// Sink receives one entry per query. Nil disables logging.
	Sink querylog.Sink
	// Stats summarises the query log. Nil makes Stats report store counts only.
	Stats querylog.Aggregator

	Mode            Mode
	FAQThreshold    float64
	TicketThreshold float64
	SingleThreshold float64
	TopK            int
	Parallel        bool
}

// Service is the support engine. It is safe for concurrent use.
type Service struct {
	base     *kb.Base
	engine   *retrieval.Engine
	composer *answer.Composer
	loader   Loader
	recorder *querylog.Recorder
	stats    querylog.Aggregator
	mode     Mode

	// ingestMu serialises ingestion; queries never take it.
	ingestMu sync.Mutex

	now   func() time.Time
	newID func() string
}

// New constructs a Service and its retrieval engine.
func New(cfg *Config) (*Service, error) {
	if cfg.Base == nil {
		return nil, fmt.Errorf("support: knowledge base must not be nil")
	}
	if cfg.Composer == nil {
		return nil, fmt.Errorf("support: composer must not be nil")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDual
	}

	var tiers []retrieval.Tier
	switch mode {
	case ModeDual:
		tiers = retrieval.DualTiers(cfg.Base.FAQ(), cfg.Base.Tickets(), cfg.FAQThreshold, cfg.TicketThreshold)
	case ModeSingle:
		tiers = retrieval.SingleTier(cfg.Base.FAQ(), cfg.SingleThreshold)
	default:
		return nil, fmt.Errorf("support: unknown retrieval mode %q", mode)
	}
	engine, err := retrieval.New(cfg.Base.Embedder(), &retrieval.Config{
		Tiers:    tiers,
		TopK:     cfg.TopK,
		Parallel: cfg.Parallel,
	})
	if err != nil {
		return nil, fmt.Errorf("support: %w", err)
	}

	return &Service{
		base:     cfg.Base,
		engine:   engine,
		composer: cfg.Composer,
		loader:   cfg.Loader,
		recorder: querylog.NewRecorder(cfg.Sink),
		stats:    cfg.Stats,
		mode:     mode,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Response is the answer to one query.
type Response struct {
	QueryID    string                 `json:"query_id"`
	Answer     string                 `json:"answer"`
	Source     string                 `json:"source"`
	Confidence float64                `json:"confidence"`
	Citations  []answer.Citation      `json:"citations"`
	LatencyMS  float64                `json:"latency_ms"`
	Query      string                 `json:"query"`
	Timestamp  time.Time              `json:"timestamp"`
	Escalation retrieval.Reason       `json:"escalation,omitempty"`
	Tiers      []retrieval.TierResult `json:"-"`
}

// Query answers question. topK <= 0 uses the configured default. Invalid
// input is a validation error; embedding and search failures are returned
// with their kind; escalation is a normal response, not an error.
func (s *Service) Query(ctx context.Context, question string, topK int) (*Response, error) {
	start := s.now()
	question = strings.TrimSpace(question)
	if err := validateQuery(question, topK); err != nil {
		return nil, err
	}
	if !s.base.Loaded(ctx) {
		return nil, ErrNotReady
	}

	id := s.newID()
	log := logging.FromContext(ctx).With(slog.String("query_id", id))
	ctx = logging.WithLogger(ctx, log)

	out, err := s.engine.Retrieve(ctx, question, topK)
	if err != nil {
		log.Error("support: retrieval failed", slog.Any("error", err))
		return nil, err
	}
	ans := s.composer.Compose(ctx, question, out)

	latency := s.now().Sub(start)
	resp := &Response{
		QueryID:    id,
		Answer:     ans.Text,
		Source:     out.Source,
		Confidence: out.Confidence,
		Citations:  ans.Citations,
		LatencyMS:  float64(latency.Microseconds()) / 1000,
		Query:      question,
		Timestamp:  start.UTC(),
		Escalation: ans.Escalation,
		Tiers:      out.Tiers,
	}

	s.recorder.Record(ctx, querylog.Entry{
		ID:         id,
		Timestamp:  resp.Timestamp,
		Query:      question,
		Source:     resp.Source,
		Confidence: resp.Confidence,
		LatencyMS:  resp.LatencyMS,
		Citations:  len(resp.Citations),
		Escalation: string(resp.Escalation),
		TopK:       topK,
	})

	log.Info("support: query answered",
		slog.String("source", resp.Source),
		slog.Float64("confidence", resp.Confidence),
		slog.String("escalation", string(resp.Escalation)),
		slog.Duration("latency", latency),
	)
	return resp, nil
}

func validateQuery(question string, topK int) error {
	n := utf8.RuneCountInString(question)
	switch {
	case n == 0:
		return rag.Errorf(rag.KindValidation, "query", errors.New("question must not be empty"))
	case n > MaxQuestionLength:
		return rag.Errorf(rag.KindValidation, "query",
			fmt.Errorf("question exceeds %d characters", MaxQuestionLength))
	case topK < 0 || topK > MaxTopK:
		return rag.Errorf(rag.KindValidation, "query",
			fmt.Errorf("top_k must be between 1 and %d", MaxTopK))
	}
	return nil
}

// IngestResult reports the state of the stores after ingestion.
type IngestResult struct {
	Status  string   `json:"status"`
	FAQ     int      `json:"faq_count"`
	Tickets int      `json:"ticket_count"`
	Message string   `json:"message"`
	Sources []string `json:"sources,omitempty"`
}

// Ingest populates the stores. Without rebuild, persisted stores are reused
// when present and built otherwise. A failed build leaves the current
// stores untouched.
func (s *Service) Ingest(ctx context.Context, rebuild bool, progress func(msg string)) (*IngestResult, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	log := logging.FromContext(ctx)
	if !rebuild {
		if counts, err := s.base.Counts(ctx); err == nil && counts.FAQ+counts.Tickets > 0 {
			log.Info("support: using persisted stores",
				slog.Int("faq_count", counts.FAQ),
				slog.Int("ticket_count", counts.Tickets),
			)
			return &IngestResult{
				Status:  "success",
				FAQ:     counts.FAQ,
				Tickets: counts.Tickets,
				Message: fmt.Sprintf("Loaded existing stores. FAQ: %d, Tickets: %d", counts.FAQ, counts.Tickets),
			}, nil
		}
		log.Info("support: no persisted stores, building")
	}

	if s.loader == nil {
		return nil, rag.Errorf(rag.KindInternal, "ingest", errors.New("no ingestion loader configured"))
	}
	corpus, err := s.loader.Load(ctx, progress)
	if err != nil {
		return nil, err
	}
	if len(corpus.FAQs)+len(corpus.Tickets) == 0 {
		return nil, rag.Errorf(rag.KindIngestion, "ingest", errors.New("no records loaded from any source"))
	}
	if progress != nil {
		progress(fmt.Sprintf("embedding %d faqs and %d tickets", len(corpus.FAQs), len(corpus.Tickets)))
	}

	counts, err := s.base.Rebuild(ctx, corpus.FAQs, corpus.Tickets)
	if err != nil {
		return nil, err
	}
	return &IngestResult{
		Status:  "success",
		FAQ:     counts.FAQ,
		Tickets: counts.Tickets,
		Message: fmt.Sprintf("Vector stores built successfully. FAQ: %d, Tickets: %d", counts.FAQ, counts.Tickets),
		Sources: corpus.Sources,
	}, nil
}

// AddFAQ appends one FAQ to the primary store and returns the stored record.
func (s *Service) AddFAQ(ctx context.Context, question, answerText, category string) (rag.Record, error) {
	rec, err := s.base.AddFAQ(ctx, question, answerText, category)
	if err != nil {
		return rag.Record{}, err
	}
	logging.FromContext(ctx).Info("support: faq added",
		slog.String("id", rec.ID),
		slog.String("category", rec.Category),
	)
	return rec, nil
}

// Stats combines the query log summary with current store sizes.
type Stats struct {
	querylog.Summary
	Stores kb.Counts `json:"stores"`
}

// Stats returns usage statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.base.Counts(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Summary: querylog.Summary{SourceBreakdown: map[string]int{}, EscalationBreakdown: map[string]int{}},
		Stores:  counts,
	}
	if s.stats != nil {
		sum, err := s.stats.Aggregate(ctx)
		if err != nil && !errors.Is(err, querylog.ErrNoAggregator) {
			return nil, rag.Errorf(rag.KindInternal, "stats", err)
		}
		if err == nil {
			st.Summary = sum
		}
	}
	return st, nil
}

// Health is the liveness payload.
type Health struct {
	Status     string             `json:"status"`
	Mode       Mode               `json:"mode"`
	Stores     kb.Counts          `json:"stores"`
	Loaded     bool               `json:"loaded"`
	Thresholds map[string]float64 `json:"thresholds"`
}

// Health reports store cardinality and the active thresholds.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "healthy", Mode: s.mode, Thresholds: s.engine.Thresholds()}
	if c, err := s.base.Counts(ctx); err == nil {
		h.Stores = c
		h.Loaded = c.FAQ+c.Tickets > 0
	}
	return h
}

// Mode returns the active retrieval mode.
func (s *Service) Mode() Mode { return s.mode }
