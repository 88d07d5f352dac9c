// Package index provides the similarity index backends behind rag.Index:
// an exact in-memory index persisted as SQLite snapshots, Qdrant
// collections, and PostgreSQL tables using pgvector.
//
// Every backend reports similarity as clamp(cosine, 0, 1) over
// L2-normalised vectors so thresholds mean the same thing everywhere.
package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/store"
)

// entry pairs a record with the vector it was inserted under.
type entry struct {
	rec rag.Record
	vec []float32
}

// MemoryIndex is an exact (flat) cosine index held in memory. Ties in
// similarity are broken by insertion order.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
}

// NewMemoryIndex returns an empty in-memory index. The dimension is fixed by
// the first Add.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add implements rag.Index.
func (m *MemoryIndex) Add(_ context.Context, recs []rag.Record, vecs [][]float32) error {
	if len(recs) != len(vecs) {
		return fmt.Errorf("index: %d records but %d vectors", len(recs), len(vecs))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range vecs {
		if m.dim == 0 && len(m.entries) == 0 {
			m.dim = len(v)
		}
		if len(v) != m.dim {
			return fmt.Errorf("index: record %s has dimension %d, want %d", recs[i].ID, len(v), m.dim)
		}
	}
	for i := range recs {
		m.entries = append(m.entries, entry{rec: recs[i], vec: slices.Clone(vecs[i])})
	}
	return nil
}

// Search implements rag.Index.
func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]rag.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || k <= 0 {
		return []rag.Hit{}, nil
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("index: query has dimension %d, want %d", len(query), m.dim)
	}

	hits := make([]rag.Hit, len(m.entries))
	for i, e := range m.entries {
		hits[i] = rag.Hit{Record: e.rec, Similarity: rag.Similarity(rag.Dot(query, e.vec))}
	}
	slices.SortStableFunc(hits, func(a, b rag.Hit) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove implements rag.Index. Remaining entries keep their order.
func (m *MemoryIndex) Remove(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = slices.DeleteFunc(m.entries, func(e entry) bool {
		_, ok := drop[e.rec.ID]
		return ok
	})
	if len(m.entries) == 0 {
		m.dim = 0
	}
	return nil
}

// Len implements rag.Index.
func (m *MemoryIndex) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// snapshot copies the index contents into a persistable form.
func (m *MemoryIndex) snapshot(name string) *store.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := &store.Snapshot{
		Name:      name,
		Dimension: m.dim,
		SavedAt:   time.Now().UTC(),
		Entries:   make([]store.Entry, len(m.entries)),
	}
	for i, e := range m.entries {
		snap.Entries[i] = store.Entry{Record: e.rec, Vector: e.vec}
	}
	return snap
}

// memoryFromSnapshot rebuilds an index from a persisted snapshot.
func memoryFromSnapshot(snap *store.Snapshot) *MemoryIndex {
	m := &MemoryIndex{dim: snap.Dimension, entries: make([]entry, len(snap.Entries))}
	for i, e := range snap.Entries {
		m.entries[i] = entry{rec: e.Record, vec: e.Vector}
	}
	return m
}

// MemoryBackend serves MemoryIndex instances and persists them as one
// SQLite snapshot per store under Dir. An empty Dir disables persistence.
type MemoryBackend struct {
	dir string

	mu   sync.Mutex
	live map[string]*MemoryIndex
}

// NewMemoryBackend returns a backend persisting snapshots under dir.
func NewMemoryBackend(dir string) *MemoryBackend {
	return &MemoryBackend{dir: dir, live: make(map[string]*MemoryIndex)}
}

// Open implements rag.Backend. The first Open of a name loads its snapshot
// from disk when one exists.
func (b *MemoryBackend) Open(ctx context.Context, name string) (rag.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.live[name]; ok {
		return idx, nil
	}
	idx := NewMemoryIndex()
	if b.dir != "" {
		snap, err := store.Load(ctx, store.Path(b.dir, name))
		switch {
		case errors.Is(err, store.ErrNoSnapshot):
		case err != nil:
			return nil, fmt.Errorf("index: load %s: %w", name, err)
		default:
			idx = memoryFromSnapshot(snap)
		}
	}
	b.live[name] = idx
	return idx, nil
}

// Stage implements rag.Backend.
func (b *MemoryBackend) Stage(context.Context, string) (rag.Index, error) {
	return NewMemoryIndex(), nil
}

// Commit implements rag.Backend. The snapshot is written before the index
// becomes live, so a failed save leaves the previous index in place.
func (b *MemoryBackend) Commit(ctx context.Context, name string, idx rag.Index) error {
	m, ok := idx.(*MemoryIndex)
	if !ok {
		return fmt.Errorf("index: memory backend cannot commit %T", idx)
	}
	if b.dir != "" {
		if err := store.Save(ctx, store.Path(b.dir, name), m.snapshot(name)); err != nil {
			return fmt.Errorf("index: save %s: %w", name, err)
		}
	}
	b.mu.Lock()
	b.live[name] = m
	b.mu.Unlock()
	return nil
}

// Discard implements rag.Backend. Memory indexes are reclaimed by the
// garbage collector; the on-disk snapshot always belongs to the live index.
func (b *MemoryBackend) Discard(_ context.Context, _ string, idx rag.Index) error {
	if _, ok := idx.(*MemoryIndex); !ok {
		return fmt.Errorf("index: memory backend cannot discard %T", idx)
	}
	return nil
}

// Close implements rag.Backend.
func (b *MemoryBackend) Close() error { return nil }
