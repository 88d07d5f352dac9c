package index

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/54b3r/supportrag-go/internal/rag"
)

func faq(id, q string) rag.Record {
	r := rag.NewFAQRecord(q, "answer to "+q, "")
	r.ID = id
	return r
}

func Test_MemoryIndex_SearchOrdersByDescendingSimilarity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := NewMemoryIndex()

	recs := []rag.Record{faq("faq_00001", "a"), faq("faq_00002", "b"), faq("faq_00003", "c")}
	vecs := [][]float32{
		rag.Normalize([]float32{1, 0}),
		rag.Normalize([]float32{1, 1}),
		rag.Normalize([]float32{0, 1}),
	}
	if err := idx.Add(ctx, recs, vecs); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := idx.Search(ctx, rag.Normalize([]float32{0, 1}), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Record.ID != "faq_00003" || hits[1].Record.ID != "faq_00002" {
		t.Errorf("order: got %s, %s", hits[0].Record.ID, hits[1].Record.ID)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Error("hits not in descending order")
	}
	for _, h := range hits {
		if h.Similarity < 0 || h.Similarity > 1 {
			t.Errorf("similarity %v out of [0,1]", h.Similarity)
		}
	}
}

func Test_MemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := NewMemoryIndex()
	v := rag.Normalize([]float32{1, 0})
	recs := []rag.Record{faq("faq_00001", "x"), faq("faq_00002", "y"), faq("faq_00003", "z")}
	if err := idx.Add(ctx, recs, [][]float32{v, v, v}); err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, err := idx.Search(ctx, v, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, h := range hits {
		if want := fmt.Sprintf("faq_%05d", i+1); h.Record.ID != want {
			t.Errorf("hit %d: got %s, want %s", i, h.Record.ID, want)
		}
	}
}

func Test_MemoryIndex_EmptyAndNegative(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := NewMemoryIndex()

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil || len(hits) != 0 {
		t.Fatalf("empty search: hits=%v err=%v", hits, err)
	}

	if err := idx.Add(ctx, []rag.Record{faq("faq_00001", "a")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, err = idx.Search(ctx, []float32{-1, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Similarity != 0 {
		t.Errorf("opposite vector similarity = %v, want 0", hits[0].Similarity)
	}
}

func Test_MemoryIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := NewMemoryIndex()
	if err := idx.Add(ctx, []rag.Record{faq("faq_00001", "a")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx.Add(ctx, []rag.Record{faq("faq_00002", "b")}, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected dimension error on add")
	}
	if _, err := idx.Search(ctx, []float32{1, 0, 0}, 1); err == nil {
		t.Error("expected dimension error on search")
	}
	if n, _ := idx.Len(ctx); n != 1 {
		t.Errorf("failed add changed size: %d", n)
	}
}

func Test_MemoryIndex_ConcurrentSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := NewMemoryIndex()
	if err := idx.Add(ctx, []rag.Record{faq("faq_00001", "a")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				_ = idx.Add(ctx, []rag.Record{faq(fmt.Sprintf("faq_x%d", i), "b")}, [][]float32{{0, 1}})
				return
			}
			if _, err := idx.Search(ctx, []float32{1, 0}, 3); err != nil {
				t.Errorf("search: %v", err)
			}
		}()
	}
	wg.Wait()
}

func Test_MemoryBackend_CommitAndReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	b := NewMemoryBackend(dir)
	staged, err := b.Stage(ctx, "faq_store")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	recs := []rag.Record{faq("faq_00001", "a"), faq("faq_00002", "b")}
	vecs := [][]float32{rag.Normalize([]float32{1, 0}), rag.Normalize([]float32{0.2, 1})}
	if err := staged.Add(ctx, recs, vecs); err != nil {
		t.Fatalf("add: %v", err)
	}

	live, err := b.Open(ctx, "faq_store")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if n, _ := live.Len(ctx); n != 0 {
		t.Errorf("staged index visible before commit: len=%d", n)
	}

	if err := b.Commit(ctx, "faq_store", staged); err != nil {
		t.Fatalf("commit: %v", err)
	}

	query := rag.Normalize([]float32{0.1, 1})
	want, _ := staged.Search(ctx, query, 2)

	reopened, err := NewMemoryBackend(dir).Open(ctx, "faq_store")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n, _ := reopened.Len(ctx); n != 2 {
		t.Fatalf("reloaded len = %d, want 2", n)
	}
	got, err := reopened.Search(ctx, query, 2)
	if err != nil {
		t.Fatalf("search reloaded: %v", err)
	}
	for i := range want {
		if got[i].Record != want[i].Record || got[i].Similarity != want[i].Similarity {
			t.Errorf("hit %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func Test_MemoryBackend_NoDirSkipsPersistence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBackend("")
	idx, _ := b.Stage(ctx, "ticket_store")
	if err := b.Commit(ctx, "ticket_store", idx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	live, _ := b.Open(ctx, "ticket_store")
	if live != idx {
		t.Error("committed index should be live")
	}
}

func Test_NewBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, err := NewBackend(ctx, &Config{Kind: KindMemory, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := b.(*MemoryBackend); !ok {
		t.Errorf("memory: got %T", b)
	}

	if _, err := NewBackend(ctx, &Config{Kind: KindPostgres}); err == nil {
		t.Error("pgvector without DSN should fail")
	}
	if _, err := NewBackend(ctx, &Config{Kind: "faiss"}); err == nil {
		t.Error("unknown backend should fail")
	}
}

func Test_MemoryIndex_Remove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := NewMemoryIndex()
	recs := []rag.Record{faq("faq_00001", "a"), faq("faq_00002", "b"), faq("faq_00003", "c")}
	vecs := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	if err := idx.Add(ctx, recs, vecs); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := idx.Remove(ctx, []string{"faq_00002", "faq_99999"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n, _ := idx.Len(ctx); n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}
	hits, _ := idx.Search(ctx, []float32{0, 1}, 5)
	if len(hits) != 2 || hits[0].Record.ID != "faq_00003" || hits[1].Record.ID != "faq_00001" {
		t.Errorf("hits = %+v", hits)
	}

	// Emptying the index frees the dimension for the next Add.
	if err := idx.Remove(ctx, []string{"faq_00001", "faq_00003"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := idx.Add(ctx, []rag.Record{faq("faq_00001", "x")}, [][]float32{{1, 0, 0}}); err != nil {
		t.Errorf("add after emptying: %v", err)
	}
}

func Test_MemoryBackend_DiscardRejectsForeignIndex(t *testing.T) {
	t.Parallel()
	b := NewMemoryBackend("")
	if err := b.Discard(context.Background(), "faq_store", NewMemoryIndex()); err != nil {
		t.Errorf("discard memory index: %v", err)
	}
	if err := b.Discard(context.Background(), "faq_store", &QdrantIndex{}); err == nil {
		t.Error("expected error discarding a foreign index")
	}
}
