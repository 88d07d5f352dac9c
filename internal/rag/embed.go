package rag

import (
	"context"
	"fmt"
)

// EmbedOne embeds a single text and returns its L2-normalised vector.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, Errorf(KindEmbedding, "embed query", err)
	}
	if len(vecs) != 1 {
		return nil, Errorf(KindEmbedding, "embed query",
			fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs)))
	}
	return Normalize(vecs[0]), nil
}

// EmbedBatched embeds texts in chunks of batchSize and returns L2-normalised
// vectors parallel to texts. A failure in any chunk aborts the whole call.
func EmbedBatched(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, Errorf(KindEmbedding, "embed batch",
				fmt.Errorf("texts %d-%d: %w", start, end, err))
		}
		if len(vecs) != end-start {
			return nil, Errorf(KindEmbedding, "embed batch",
				fmt.Errorf("expected %d vectors, got %d", end-start, len(vecs)))
		}
		for _, v := range vecs {
			out = append(out, Normalize(v))
		}
	}
	return out, nil
}
