package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// defaultLocalDimensions matches the all-MiniLM-L6-v2 width so a store built
// offline has the same shape as one built with a sentence-transformer model.
const defaultLocalDimensions = 384

// LocalEmbedder is a deterministic feature-hashing embedder that needs no
// model server. Word unigrams, word bigrams and character trigrams are hashed
// into a fixed number of signed buckets. It captures lexical overlap only and
// is intended for offline runs, demos and tests.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder returns a LocalEmbedder producing vectors of the given
// width (default 384).
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = defaultLocalDimensions
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Embed implements rag.Embedder.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	words := tokenize(text)
	for i, w := range words {
		e.add(vec, "w:"+w, 1)
		if i > 0 {
			e.add(vec, "b:"+words[i-1]+" "+w, 0.5)
		}
		padded := " " + w + " "
		for j := 0; j+3 <= len(padded); j++ {
			e.add(vec, "c:"+padded[j:j+3], 0.25)
		}
	}
	return vec
}

func (e *LocalEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
