package kb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/54b3r/supportrag-go/internal/embedder"
	"github.com/54b3r/supportrag-go/internal/index"
	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/store"
)

// faultyBackend wraps a MemoryBackend, failing commits for selected stores
// and recording discards.
type faultyBackend struct {
	*index.MemoryBackend

	mu       sync.Mutex
	failFor  map[string]bool
	discards []string
}

func newFaultyBackend(dir string) *faultyBackend {
	return &faultyBackend{MemoryBackend: index.NewMemoryBackend(dir), failFor: map[string]bool{}}
}

func (f *faultyBackend) failCommits(name string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[name] = fail
}

func (f *faultyBackend) Commit(ctx context.Context, name string, idx rag.Index) error {
	f.mu.Lock()
	fail := f.failFor[name]
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Commit(ctx, name, idx)
}

func (f *faultyBackend) Discard(ctx context.Context, name string, idx rag.Index) error {
	f.mu.Lock()
	f.discards = append(f.discards, name)
	f.mu.Unlock()
	return f.MemoryBackend.Discard(ctx, name, idx)
}

func (f *faultyBackend) resetDiscards() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards = nil
}

func (f *faultyBackend) discarded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.discards)
	slices.Sort(out)
	return out
}

func openWith(t *testing.T, backend rag.Backend) *Base {
	t.Helper()
	b, err := Open(context.Background(), &Config{
		Backend:  backend,
		Embedder: embedder.NewLocalEmbedder(64),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return b
}

func mustCounts(t *testing.T, b *Base) Counts {
	t.Helper()
	c, err := b.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	return c
}

func oneFAQTwoTickets() ([]rag.Record, []rag.Record) {
	return []rag.Record{
			rag.NewFAQRecord("How do I cancel my subscription?", "Go to Billing and choose Cancel.", "Billing"),
		}, []rag.Record{
			rag.NewTicketRecord("Refund for damaged item", "Refund issued to the original card.", "resolved", "Billing"),
			rag.NewTicketRecord("Login loop on mobile", "Cleared the app cache.", "resolved", "Account"),
		}
}

func Test_Base_FailedTicketCommitRestoresFAQStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	backend := newFaultyBackend(dir)
	b := openWith(t, backend)

	if _, err := b.Rebuild(ctx, sampleFAQs(), sampleTickets()); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	backend.resetDiscards()

	backend.failCommits(TicketStoreName, true)
	faqs, tickets := oneFAQTwoTickets()
	_, err := b.Rebuild(ctx, faqs, tickets)
	if err == nil {
		t.Fatal("expected rebuild to fail")
	}
	if rag.KindOf(err) != rag.KindIndex {
		t.Errorf("kind = %q, want index", rag.KindOf(err))
	}

	if c := mustCounts(t, b); c.FAQ != 2 || c.Tickets != 1 {
		t.Errorf("counts after failed rebuild = %+v, want {2 1}", c)
	}
	vec, _ := rag.EmbedOne(ctx, b.Embedder(), "reset my password")
	hits, err := b.FAQ().Search(ctx, vec, 1)
	if err != nil || len(hits) != 1 || hits[0].Record.Question != "How do I reset my password?" {
		t.Errorf("FAQ store not restored: hits=%+v err=%v", hits, err)
	}
	if got := backend.discarded(); !slices.Equal(got, []string{FAQStoreName, TicketStoreName}) {
		t.Errorf("discarded = %v, want both staged indexes", got)
	}

	// The restored FAQ snapshot is what a restart loads.
	reopened := openWith(t, index.NewMemoryBackend(dir))
	if c := mustCounts(t, reopened); c.FAQ != 2 || c.Tickets != 1 {
		t.Errorf("reloaded counts = %+v, want {2 1}", c)
	}
}

func Test_Base_UnwritableTicketSnapshotLeavesStoresUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	b := openWith(t, index.NewMemoryBackend(dir))

	if _, err := b.Rebuild(ctx, sampleFAQs(), sampleTickets()); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	// A non-empty directory where the ticket snapshot lives makes its
	// rename fail after the FAQ snapshot has been written.
	path := store.Path(dir, TicketStoreName)
	if err := os.RemoveAll(path); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	faqs, tickets := oneFAQTwoTickets()
	if _, err := b.Rebuild(ctx, faqs, tickets); err == nil {
		t.Fatal("expected rebuild to fail")
	}
	if c := mustCounts(t, b); c.FAQ != 2 || c.Tickets != 1 {
		t.Errorf("counts after failed rebuild = %+v, want {2 1}", c)
	}
}

func Test_Base_FailedFAQCommitDiscardsBothStages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFaultyBackend("")
	b := openWith(t, backend)

	backend.failCommits(FAQStoreName, true)
	if _, err := b.Rebuild(ctx, sampleFAQs(), sampleTickets()); err == nil {
		t.Fatal("expected rebuild to fail")
	}
	if c := mustCounts(t, b); c.FAQ != 0 || c.Tickets != 0 {
		t.Errorf("counts = %+v, want empty", c)
	}
	if got := backend.discarded(); !slices.Equal(got, []string{FAQStoreName, TicketStoreName}) {
		t.Errorf("discarded = %v", got)
	}
}

func Test_Base_RebuildReleasesReplacedIndexes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFaultyBackend("")
	b := openWith(t, backend)

	if _, err := b.Rebuild(ctx, sampleFAQs(), sampleTickets()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got := backend.discarded(); !slices.Equal(got, []string{FAQStoreName, TicketStoreName}) {
		t.Errorf("discarded = %v, want the two replaced indexes", got)
	}
}

func Test_Store_FailedStageIsDiscarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFaultyBackend("")
	b := openWith(t, backend)

	// Fewer vectors than records makes the staged Add fail.
	if _, err := b.FAQ().Stage(ctx, sampleFAQs(), nil); err == nil {
		t.Fatal("expected stage to fail")
	}
	if got := backend.discarded(); !slices.Equal(got, []string{FAQStoreName}) {
		t.Errorf("discarded = %v, want [%s]", got, FAQStoreName)
	}
}

func Test_Base_AddFAQNotSearchableWhenPersistFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFaultyBackend("")
	b := openWith(t, backend)
	if _, err := b.Rebuild(ctx, sampleFAQs(), sampleTickets()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	backend.failCommits(FAQStoreName, true)
	_, err := b.AddFAQ(ctx, "Can I pay by invoice?", "Yes, for business accounts.", "Billing")
	if rag.KindOf(err) != rag.KindIndex {
		t.Fatalf("err = %v, want index error", err)
	}
	if c := mustCounts(t, b); c.FAQ != 2 {
		t.Errorf("FAQ count = %d, want 2", c.FAQ)
	}
	vec, _ := rag.EmbedOne(ctx, b.Embedder(), "Can I pay by invoice?")
	hits, _ := b.FAQ().Search(ctx, vec, 5)
	for _, h := range hits {
		if h.Record.Question == "Can I pay by invoice?" {
			t.Errorf("failed add is searchable as %s", h.Record.ID)
		}
	}

	// A retry after the fault clears takes the next ID, not a duplicate.
	backend.failCommits(FAQStoreName, false)
	rec, err := b.AddFAQ(ctx, "Can I pay by invoice?", "Yes, for business accounts.", "Billing")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if rec.ID != "faq_00003" {
		t.Errorf("retry id = %q, want faq_00003", rec.ID)
	}
	if c := mustCounts(t, b); c.FAQ != 3 {
		t.Errorf("FAQ count after retry = %d, want 3", c.FAQ)
	}
}
