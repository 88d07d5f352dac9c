package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/rag"
)

// Counts reports the cardinality of each store.
type Counts struct {
	FAQ     int `json:"faq_count"`
	Tickets int `json:"ticket_count"`
}

// Config controls knowledge base construction.
type Config struct {
	// Backend owns the store indexes.
	Backend rag.Backend
	// Embedder is shared by both stores and by query embedding.
	Embedder rag.Embedder
	// BatchSize is the number of texts sent per embedding call (default 32).
	BatchSize int
}

// Base is the dual-store knowledge base.
type Base struct {
	embedder  rag.Embedder
	batchSize int

	faq     *Store
	tickets *Store
}

// Open opens both stores, loading any persisted state.
func Open(ctx context.Context, cfg *Config) (*Base, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("kb: backend must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("kb: embedder must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	faq, err := OpenStore(ctx, cfg.Backend, FAQStoreName, rag.KindFAQ)
	if err != nil {
		return nil, err
	}
	tickets, err := OpenStore(ctx, cfg.Backend, TicketStoreName, rag.KindTicket)
	if err != nil {
		return nil, err
	}
	return &Base{embedder: cfg.Embedder, batchSize: cfg.BatchSize, faq: faq, tickets: tickets}, nil
}

// FAQ returns the primary store.
func (b *Base) FAQ() *Store { return b.faq }

// Tickets returns the fallback store.
func (b *Base) Tickets() *Store { return b.tickets }

// Embedder returns the embedder shared by both stores.
func (b *Base) Embedder() rag.Embedder { return b.embedder }

// Counts returns the size of both stores.
func (b *Base) Counts(ctx context.Context) (Counts, error) {
	faq, err := b.faq.Len(ctx)
	if err != nil {
		return Counts{}, err
	}
	tickets, err := b.tickets.Len(ctx)
	if err != nil {
		return Counts{}, err
	}
	return Counts{FAQ: faq, Tickets: tickets}, nil
}

// Rebuild replaces both stores with the given records. Every record is
// embedded and both replacement indexes are fully built before either is
// committed. Both commits run while readers of both stores are blocked; if
// the ticket commit fails the FAQ store is restored, so callers observe
// either both new stores or both old ones.
func (b *Base) Rebuild(ctx context.Context, faqs, tickets []rag.Record) (Counts, error) {
	log := logging.FromContext(ctx)

	faqVecs, err := rag.EmbedBatched(ctx, b.embedder, contents(faqs), b.batchSize)
	if err != nil {
		return Counts{}, fmt.Errorf("kb: embed FAQs: %w", err)
	}
	ticketVecs, err := rag.EmbedBatched(ctx, b.embedder, contents(tickets), b.batchSize)
	if err != nil {
		return Counts{}, fmt.Errorf("kb: embed tickets: %w", err)
	}

	stagedFAQ, err := b.faq.Stage(ctx, faqs, faqVecs)
	if err != nil {
		return Counts{}, err
	}
	stagedTickets, err := b.tickets.Stage(ctx, tickets, ticketVecs)
	if err != nil {
		discard(ctx, stagedFAQ)
		return Counts{}, err
	}

	prevFAQ, prevTickets, err := b.swapBoth(ctx, stagedFAQ, stagedTickets)
	if err != nil {
		return Counts{}, err
	}
	b.faq.retire(ctx, prevFAQ)
	b.tickets.retire(ctx, prevTickets)

	counts := Counts{FAQ: stagedFAQ.Count(), Tickets: stagedTickets.Count()}
	log.Info("kb: stores rebuilt",
		slog.Int("faq_count", counts.FAQ),
		slog.Int("ticket_count", counts.Tickets),
	)
	return counts, nil
}

// swapBoth commits both staged indexes as one step and returns the indexes
// they replaced. On failure the live pair is unchanged and both staged
// indexes are released. Locks are taken FAQ first, then tickets.
func (b *Base) swapBoth(ctx context.Context, faq, tickets *Staged) (rag.Index, rag.Index, error) {
	b.faq.mu.Lock()
	defer b.faq.mu.Unlock()
	b.tickets.mu.Lock()
	defer b.tickets.mu.Unlock()

	prevFAQ, err := b.faq.swapLocked(ctx, faq)
	if err != nil {
		discard(ctx, faq, tickets)
		return nil, nil, err
	}
	prevTickets, err := b.tickets.swapLocked(ctx, tickets)
	if err == nil {
		return prevFAQ, prevTickets, nil
	}

	if rbErr := b.faq.restoreLocked(ctx, prevFAQ); rbErr != nil {
		// The new FAQ index stays live; keep its storage.
		logging.FromContext(ctx).Error("kb: could not restore FAQ store after failed ticket commit",
			slog.Any("error", rbErr),
		)
		discard(ctx, tickets)
		return nil, nil, errors.Join(err, rbErr)
	}
	discard(ctx, faq, tickets)
	return nil, nil, err
}

// discard releases staged indexes, logging failures.
func discard(ctx context.Context, staged ...*Staged) {
	for _, st := range staged {
		if err := st.Discard(ctx); err != nil {
			logging.FromContext(ctx).Warn("kb: failed to release staged index",
				slog.String("store", st.store.name),
				slog.Any("error", err),
			)
		}
	}
}

// AddFAQ embeds and appends a single FAQ to the primary store.
func (b *Base) AddFAQ(ctx context.Context, question, answer, category string) (rag.Record, error) {
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return rag.Record{}, rag.Errorf(rag.KindValidation, "add faq",
			fmt.Errorf("question and answer must not be empty"))
	}
	rec := rag.NewFAQRecord(question, answer, strings.TrimSpace(category))
	rec.Origin = "api"

	vec, err := rag.EmbedOne(ctx, b.embedder, rec.Content)
	if err != nil {
		return rag.Record{}, err
	}
	added, err := b.faq.Add(ctx, []rag.Record{rec}, [][]float32{vec})
	if err != nil {
		return rag.Record{}, err
	}
	return added[0], nil
}

// Loaded reports whether at least one store holds records.
func (b *Base) Loaded(ctx context.Context) bool {
	c, err := b.Counts(ctx)
	return err == nil && c.FAQ+c.Tickets > 0
}

// Name implements the readiness check interface.
func (b *Base) Name() string { return "knowledge_base" }

// Ping implements the readiness check interface: the knowledge base is ready
// once ingestion has populated at least one store.
func (b *Base) Ping(ctx context.Context) error {
	c, err := b.Counts(ctx)
	if err != nil {
		return err
	}
	if c.FAQ+c.Tickets == 0 {
		return fmt.Errorf("no records loaded, run ingestion")
	}
	return nil
}

func contents(recs []rag.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Content
	}
	return out
}
