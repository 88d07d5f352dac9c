// Package retrieval implements the tiered retrieval-and-fallback policy.
//
// Stores are consulted in tier order. The first tier whose best hit meets its
// threshold supplies the answer context; when no tier qualifies the query is
// escalated. The dual-store configuration is an FAQ tier followed by a ticket
// tier; the single-store configuration is one FAQ tier.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/rag"
)

// Default thresholds and result count.
const (
	DefaultFAQThreshold    = 0.65
	DefaultTicketThreshold = 0.0
	DefaultSingleThreshold = 0.7
	DefaultTopK            = 3
)

// SourceNone is the source reported when no store supplied an answer.
const SourceNone = "None"

// Reason explains why a query was escalated to a human.
type Reason string

const (
	// ReasonNone means the query was answered.
	ReasonNone Reason = ""
	// ReasonNoResults means every store returned zero hits.
	ReasonNoResults Reason = "no_results"
	// ReasonLowConfidence means hits existed but none met its tier threshold.
	ReasonLowConfidence Reason = "low_confidence"
	// ReasonGenerationFailed means retrieval succeeded but generation did
	// not, so the answer is the raw-context fallback.
	ReasonGenerationFailed Reason = "generation_failed"
)

// Searcher is the store capability the engine needs.
type Searcher interface {
	Name() string
	Kind() rag.SourceKind
	Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error)
}

// Tier is one step of the fallback chain.
type Tier struct {
	// Store is searched when every earlier tier declined.
	Store Searcher
	// Threshold is the minimum rank-1 similarity for the tier to answer.
	// Zero accepts any non-empty result.
	Threshold float64
}

// Entry is a ranked retrieval result.
type Entry struct {
	Record     rag.Record
	Similarity float64
	// Rank is 1-based.
	Rank int
}

// TierResult records how a tier was evaluated, for logs and debugging.
type TierResult struct {
	Source        string  `json:"source"`
	Hits          int     `json:"hits"`
	TopSimilarity float64 `json:"top_similarity"`
	Threshold     float64 `json:"threshold"`
	Accepted      bool    `json:"accepted"`
}

// Outcome is the engine's decision for one query.
type Outcome struct {
	// Source is the accepted store kind ("FAQ", "Ticket") or "None".
	Source string
	// Confidence is the rank-1 similarity of the accepted tier, 0 when
	// escalated.
	Confidence float64
	// Entries are the accepted tier's results, best first. Empty when
	// escalated.
	Entries []Entry
	// Escalation is set when no tier accepted.
	Escalation Reason
	// Tiers lists every tier that was searched, in order.
	Tiers []TierResult
}

// Escalated reports whether no store supplied an answer.
func (o *Outcome) Escalated() bool { return o.Source == SourceNone }

// Config holds engine settings.
type Config struct {
	// Tiers is the ordered fallback chain. At least one is required.
	Tiers []Tier
	// TopK is the default number of results per store (default 3).
	TopK int
	// Parallel searches every tier concurrently. Acceptance is still
	// decided in tier order.
	Parallel bool
}

// DualTiers returns the FAQ-then-ticket chain.
func DualTiers(faq, tickets Searcher, faqThreshold, ticketThreshold float64) []Tier {
	return []Tier{
		{Store: faq, Threshold: faqThreshold},
		{Store: tickets, Threshold: ticketThreshold},
	}
}

// SingleTier returns the FAQ-only chain whose miss is an escalation.
func SingleTier(faq Searcher, threshold float64) []Tier {
	return []Tier{{Store: faq, Threshold: threshold}}
}

// Engine embeds a query once and applies the tier policy.
type Engine struct {
	embedder rag.Embedder
	tiers    []Tier
	topK     int
	parallel bool
}

// New constructs an Engine.
func New(embedder rag.Embedder, cfg *Config) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("retrieval: at least one tier is required")
	}
	for i, t := range cfg.Tiers {
		if t.Store == nil {
			return nil, fmt.Errorf("retrieval: tier %d has no store", i)
		}
		if t.Threshold < 0 || t.Threshold > 1 {
			return nil, fmt.Errorf("retrieval: tier %s threshold %.2f outside [0,1]", t.Store.Name(), t.Threshold)
		}
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{embedder: embedder, tiers: cfg.Tiers, topK: topK, parallel: cfg.Parallel}, nil
}

// Thresholds returns the per-store thresholds keyed by store name.
func (e *Engine) Thresholds() map[string]float64 {
	out := make(map[string]float64, len(e.tiers))
	for _, t := range e.tiers {
		out[t.Store.Name()] = t.Threshold
	}
	return out
}

// Retrieve embeds query and runs the tier policy. topK <= 0 uses the
// configured default. Embedding and search failures are returned as errors;
// empty and low-confidence results are not errors.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) (*Outcome, error) {
	vec, err := rag.EmbedOne(ctx, e.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	return e.RetrieveVector(ctx, vec, topK)
}

// RetrieveVector runs the tier policy for an already-normalised query vector.
func (e *Engine) RetrieveVector(ctx context.Context, vec []float32, topK int) (*Outcome, error) {
	if topK <= 0 {
		topK = e.topK
	}

	search := e.sequential
	if e.parallel && len(e.tiers) > 1 {
		search = e.concurrent
	}
	out, err := search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	logging.FromContext(ctx).Debug("retrieval: decision",
		slog.String("source", out.Source),
		slog.Float64("confidence", out.Confidence),
		slog.String("escalation", string(out.Escalation)),
		slog.Any("tiers", out.Tiers),
	)
	return out, nil
}

// sequential searches tiers lazily: a tier is only searched when every
// earlier tier declined.
func (e *Engine) sequential(ctx context.Context, vec []float32, topK int) (*Outcome, error) {
	out := &Outcome{}
	for _, t := range e.tiers {
		hits, err := t.Store.Search(ctx, vec, topK)
		if err != nil {
			return nil, err
		}
		if e.evaluate(out, t, hits) {
			return out, nil
		}
	}
	escalate(out)
	return out, nil
}

// concurrent searches every tier at once and then evaluates them in order,
// so a later tier is never preferred over an accepting earlier one. Errors
// from tiers after the accepted one are ignored.
func (e *Engine) concurrent(ctx context.Context, vec []float32, topK int) (*Outcome, error) {
	hits := make([][]rag.Hit, len(e.tiers))
	errs := make([]error, len(e.tiers))

	var g errgroup.Group
	for i, t := range e.tiers {
		g.Go(func() error {
			hits[i], errs[i] = t.Store.Search(ctx, vec, topK)
			return nil
		})
	}
	_ = g.Wait()

	out := &Outcome{}
	for i, t := range e.tiers {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if e.evaluate(out, t, hits[i]) {
			return out, nil
		}
	}
	escalate(out)
	return out, nil
}

// evaluate records a tier's result on out and reports whether it accepted.
func (e *Engine) evaluate(out *Outcome, t Tier, hits []rag.Hit) bool {
	tr := TierResult{Source: string(t.Store.Kind()), Hits: len(hits), Threshold: t.Threshold}
	if len(hits) > 0 {
		tr.TopSimilarity = hits[0].Similarity
		tr.Accepted = hits[0].Similarity >= t.Threshold
	}
	out.Tiers = append(out.Tiers, tr)
	if !tr.Accepted {
		return false
	}

	out.Source = string(t.Store.Kind())
	out.Confidence = hits[0].Similarity
	out.Entries = make([]Entry, len(hits))
	for i, h := range hits {
		out.Entries[i] = Entry{Record: h.Record, Similarity: h.Similarity, Rank: i + 1}
	}
	return true
}

// escalate marks out as unanswered, distinguishing empty stores from weak
// matches.
func escalate(out *Outcome) {
	out.Source = SourceNone
	out.Confidence = 0
	out.Entries = []Entry{}
	out.Escalation = ReasonNoResults
	for _, tr := range out.Tiers {
		if tr.Hits > 0 {
			out.Escalation = ReasonLowConfidence
			break
		}
	}
}
