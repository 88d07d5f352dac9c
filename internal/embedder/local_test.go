package embedder

import (
	"context"
	"testing"

	"github.com/54b3r/supportrag-go/internal/rag"
)

func Test_LocalEmbedder_Deterministic(t *testing.T) {
	t.Parallel()
	e := NewLocalEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"How do I reset my password?"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, _ := e.Embed(ctx, []string{"How do I reset my password?"})
	if len(a[0]) != defaultLocalDimensions {
		t.Fatalf("dim = %d, want %d", len(a[0]), defaultLocalDimensions)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("non-deterministic at %d", i)
		}
	}
}

func Test_LocalEmbedder_LexicalOverlapScoresHigher(t *testing.T) {
	t.Parallel()
	e := NewLocalEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"how do i reset my password",
		"password reset help",
		"shipping times to canada",
	})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	q := rag.Normalize(vecs[0])
	near := rag.Dot(q, rag.Normalize(vecs[1]))
	far := rag.Dot(q, rag.Normalize(vecs[2]))
	if near <= far {
		t.Errorf("expected related text to score higher: near=%.3f far=%.3f", near, far)
	}
}

func Test_LocalEmbedder_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocalEmbedder(8).Embed(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}

func Test_tokenize(t *testing.T) {
	t.Parallel()
	got := tokenize("Where's my ORDER #123?")
	want := []string{"where", "s", "my", "order", "123"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
