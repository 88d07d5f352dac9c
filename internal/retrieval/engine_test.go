package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/54b3r/supportrag-go/internal/rag"
)

// fakeStore returns canned hits with the given similarities.
type fakeStore struct {
	name  string
	kind  rag.SourceKind
	sims  []float64
	err   error
	calls atomic.Int32
}

func (f *fakeStore) Name() string         { return f.name }
func (f *fakeStore) Kind() rag.SourceKind { return f.kind }

func (f *fakeStore) Search(_ context.Context, _ []float32, k int) ([]rag.Hit, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	hits := make([]rag.Hit, 0, len(f.sims))
	for i, s := range f.sims {
		if i == k {
			break
		}
		rec := rag.Record{ID: rag.FormatID(f.kind, i+1), Kind: f.kind, Content: "content"}
		hits = append(hits, rag.Hit{Record: rec, Similarity: s})
	}
	return hits, nil
}

// countingEmbedder counts calls and returns a fixed vector.
type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newDual(t *testing.T, faqSims, ticketSims []float64, ticketThreshold float64, parallel bool) (*Engine, *fakeStore, *fakeStore, *countingEmbedder) {
	t.Helper()
	faq := &fakeStore{name: "faq_store", kind: rag.KindFAQ, sims: faqSims}
	tickets := &fakeStore{name: "ticket_store", kind: rag.KindTicket, sims: ticketSims}
	emb := &countingEmbedder{}
	e, err := New(emb, &Config{
		Tiers:    DualTiers(faq, tickets, DefaultFAQThreshold, ticketThreshold),
		Parallel: parallel,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return e, faq, tickets, emb
}

func TestEngine_DualStorePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		faq, tickets    []float64
		ticketThreshold float64
		wantSource      string
		wantConfidence  float64
		wantEntries     int
		wantEscalation  Reason
	}{
		{
			name:           "faq above threshold",
			faq:            []float64{0.91, 0.7, 0.4},
			tickets:        []float64{0.99},
			wantSource:     "FAQ",
			wantConfidence: 0.91,
			wantEntries:    3,
		},
		{
			name:           "faq exactly at threshold",
			faq:            []float64{0.65},
			tickets:        []float64{0.9},
			wantSource:     "FAQ",
			wantConfidence: 0.65,
			wantEntries:    1,
		},
		{
			name:           "faq below threshold falls back to tickets",
			faq:            []float64{0.64},
			tickets:        []float64{0.3, 0.2},
			wantSource:     "Ticket",
			wantConfidence: 0.3,
			wantEntries:    2,
		},
		{
			name:           "faq empty falls back to tickets",
			tickets:        []float64{0.1},
			wantSource:     "Ticket",
			wantConfidence: 0.1,
			wantEntries:    1,
		},
		{
			name:           "both empty",
			wantSource:     SourceNone,
			wantEscalation: ReasonNoResults,
		},
		{
			name:           "faq low and tickets empty",
			faq:            []float64{0.5},
			wantSource:     SourceNone,
			wantEscalation: ReasonLowConfidence,
		},
		{
			name:            "ticket floor rejects weak tickets",
			faq:             []float64{0.5},
			tickets:         []float64{0.3},
			ticketThreshold: 0.4,
			wantSource:      SourceNone,
			wantEscalation:  ReasonLowConfidence,
		},
		{
			name:            "ticket floor accepts strong tickets",
			faq:             []float64{0.5},
			tickets:         []float64{0.45},
			ticketThreshold: 0.4,
			wantSource:      "Ticket",
			wantConfidence:  0.45,
			wantEntries:     1,
		},
	}

	for _, tc := range tests {
		for _, parallel := range []bool{false, true} {
			name := tc.name
			if parallel {
				name += "/parallel"
			}
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				e, _, _, emb := newDual(t, tc.faq, tc.tickets, tc.ticketThreshold, parallel)

				out, err := e.Retrieve(context.Background(), "how do I reset my password", 0)
				if err != nil {
					t.Fatalf("retrieve: %v", err)
				}
				if out.Source != tc.wantSource {
					t.Errorf("source = %q, want %q", out.Source, tc.wantSource)
				}
				if out.Confidence != tc.wantConfidence {
					t.Errorf("confidence = %v, want %v", out.Confidence, tc.wantConfidence)
				}
				if len(out.Entries) != tc.wantEntries {
					t.Errorf("entries = %d, want %d", len(out.Entries), tc.wantEntries)
				}
				if out.Escalation != tc.wantEscalation {
					t.Errorf("escalation = %q, want %q", out.Escalation, tc.wantEscalation)
				}
				if out.Escalated() != (tc.wantSource == SourceNone) {
					t.Errorf("Escalated() = %v", out.Escalated())
				}
				if out.Entries == nil {
					t.Error("entries must be non-nil")
				}
				if n := emb.calls.Load(); n != 1 {
					t.Errorf("embedder called %d times, want 1", n)
				}
			})
		}
	}
}

func TestEngine_EntriesRankedAndBounded(t *testing.T) {
	t.Parallel()
	e, _, _, _ := newDual(t, []float64{0.9, 0.8, 0.7, 0.6, 0.5}, nil, 0, false)

	out, err := e.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(out.Entries))
	}
	for i, en := range out.Entries {
		if en.Rank != i+1 {
			t.Errorf("entry %d rank = %d", i, en.Rank)
		}
		if en.Record.Kind != rag.KindFAQ {
			t.Errorf("entry %d from %s", i, en.Record.Kind)
		}
		if i > 0 && en.Similarity > out.Entries[i-1].Similarity {
			t.Error("entries not in descending order")
		}
	}
	if out.Confidence != out.Entries[0].Similarity {
		t.Errorf("confidence %v != rank-1 similarity %v", out.Confidence, out.Entries[0].Similarity)
	}
}

func TestEngine_SequentialSkipsFallbackWhenPrimaryAccepts(t *testing.T) {
	t.Parallel()
	e, faq, tickets, _ := newDual(t, []float64{0.8}, []float64{0.9}, 0, false)
	if _, err := e.Retrieve(context.Background(), "q", 3); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if faq.calls.Load() != 1 || tickets.calls.Load() != 0 {
		t.Errorf("calls: faq=%d tickets=%d", faq.calls.Load(), tickets.calls.Load())
	}
}

func TestEngine_ParallelIgnoresLaterTierErrorWhenPrimaryAccepts(t *testing.T) {
	t.Parallel()
	e, _, tickets, _ := newDual(t, []float64{0.8}, nil, 0, true)
	tickets.err = errors.New("ticket index offline")

	out, err := e.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if out.Source != "FAQ" {
		t.Errorf("source = %q", out.Source)
	}
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()

	e, faq, _, _ := newDual(t, nil, nil, 0, false)
	faq.err = errors.New("index corrupt")
	if _, err := e.Retrieve(context.Background(), "q", 3); err == nil {
		t.Error("expected search error")
	}

	emb := &countingEmbedder{err: errors.New("model not loaded")}
	e2, err := New(emb, &Config{Tiers: SingleTier(&fakeStore{name: "faq_store", kind: rag.KindFAQ}, 0.7)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = e2.Retrieve(context.Background(), "q", 3)
	if rag.KindOf(err) != rag.KindEmbedding {
		t.Errorf("kind = %q, want embedding", rag.KindOf(err))
	}
}

func TestEngine_SingleTier(t *testing.T) {
	t.Parallel()
	faq := &fakeStore{name: "faq_store", kind: rag.KindFAQ, sims: []float64{0.68}}
	e, err := New(&countingEmbedder{}, &Config{Tiers: SingleTier(faq, DefaultSingleThreshold)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := e.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if out.Source != SourceNone || out.Escalation != ReasonLowConfidence {
		t.Errorf("outcome = %+v", out)
	}

	faq.sims = []float64{0.75}
	out, _ = e.Retrieve(context.Background(), "q", 3)
	if out.Source != "FAQ" {
		t.Errorf("source = %q, want FAQ", out.Source)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	faq := &fakeStore{name: "faq_store", kind: rag.KindFAQ}
	if _, err := New(nil, &Config{Tiers: SingleTier(faq, 0.5)}); err == nil {
		t.Error("nil embedder should fail")
	}
	if _, err := New(&countingEmbedder{}, &Config{}); err == nil {
		t.Error("no tiers should fail")
	}
	if _, err := New(&countingEmbedder{}, &Config{Tiers: SingleTier(faq, 1.5)}); err == nil {
		t.Error("threshold above 1 should fail")
	}
	e, err := New(&countingEmbedder{}, &Config{Tiers: DualTiers(faq, &fakeStore{name: "ticket_store", kind: rag.KindTicket}, 0.65, 0)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if th := e.Thresholds(); th["faq_store"] != 0.65 || th["ticket_store"] != 0 {
		t.Errorf("thresholds = %v", th)
	}
}
