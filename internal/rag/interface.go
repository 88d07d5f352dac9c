// Package rag defines the shared retrieval types and the narrow capability
// interfaces the support engine is built on: embedding, similarity indexes,
// and the backends that own index lifecycles.
// Concrete implementations (in-memory, Qdrant, pgvector) live in the index
// package so the engine never depends on a specific backend.
package rag

import (
	"context"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be deterministic for a given model and safe to call
// from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is a similarity index over records. Each entry owns its Record, so a
// search hit always refers to the record that was inserted with its vector.
// Implementations must be safe for concurrent Search calls; callers serialise
// Add against Search.
type Index interface {
	// Add inserts records with their pre-computed, L2-normalised vectors.
	// vecs must be parallel to recs.
	Add(ctx context.Context, recs []Record, vecs [][]float32) error

	// Search returns at most k hits ordered by descending similarity.
	// An empty index returns an empty slice, not an error.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Remove deletes the records with the given IDs. Unknown IDs are
	// ignored.
	Remove(ctx context.Context, ids []string) error

	// Len returns the number of records in the index.
	Len(ctx context.Context) (int, error)
}

// Backend owns the lifecycle of named indexes: opening the live index,
// staging a replacement, making an index durable and live, and releasing
// indexes that are no longer live.
type Backend interface {
	// Open returns the live index for name, or an empty one if none exists.
	Open(ctx context.Context, name string) (Index, error)

	// Stage returns a fresh, empty index for name that is not visible to
	// Open until it is passed to Commit.
	Stage(ctx context.Context, name string) (Index, error)

	// Commit makes idx durable and the live index for name. The previous
	// live index keeps its data, so committing it again restores it.
	// Committing the current live index persists it.
	Commit(ctx context.Context, name string, idx Index) error

	// Discard releases the storage of an index that is not live for name:
	// an abandoned staged index or a retired generation. Discarding the
	// live index is a no-op.
	Discard(ctx context.Context, name string, idx Index) error

	// Close releases any resources held by the backend.
	Close() error
}
