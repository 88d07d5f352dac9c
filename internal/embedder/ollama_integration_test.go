//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/supportrag-go/internal/rag"
)

// TestOllamaEmbedder_RanksParaphraseAboveUnrelated embeds a stored FAQ, a
// customer paraphrase of it and an unrelated ticket against a running Ollama.
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run Ollama ./internal/embedder/
func TestOllamaEmbedder_RanksParaphraseAboveUnrelated(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}
	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	faq := "Question: How do I reset my password?\nAnswer: Use the Forgot password link on the sign-in page."
	paraphrase := "I forgot my password and can't log in"
	unrelated := "User Question: My parcel arrived damaged\nAgent Response: We shipped a replacement."

	vecs, err := emb.Embed(ctx, []string{faq, paraphrase, unrelated})
	if err != nil {
		t.Skipf("ollama unavailable at %s (pull %s first): %v", host, model, err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			t.Fatalf("vector %d is empty", i)
		}
	}

	stored := rag.Normalize(vecs[0])
	near := rag.Similarity(rag.Dot(stored, rag.Normalize(vecs[1])))
	far := rag.Similarity(rag.Dot(stored, rag.Normalize(vecs[2])))
	t.Logf("model=%s dim=%d paraphrase=%.3f unrelated=%.3f", model, len(vecs[0]), near, far)

	if near <= far {
		t.Errorf("paraphrase similarity %.3f should exceed unrelated %.3f", near, far)
	}
}
