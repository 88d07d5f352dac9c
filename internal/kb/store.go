// Package kb holds the support knowledge base: a primary FAQ store and a
// fallback ticket store, each a named index owned by a rag.Backend.
// Rebuilds stage fresh indexes and swap them in only after every record has
// been embedded and indexed. Both swaps happen under both store locks and a
// failed second swap restores the first, so readers never see a half-built
// or mixed pair of stores and a failed rebuild leaves the previous stores in
// place.
package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/rag"
)

// Store names used for persistence and backend collections.
const (
	FAQStoreName    = "faq_store"
	TicketStoreName = "ticket_store"
)

// Store is one named similarity store. Search takes a read lock; Add and
// Swap take the write lock.
type Store struct {
	name    string
	kind    rag.SourceKind
	backend rag.Backend

	mu  sync.RWMutex
	idx rag.Index
}

// OpenStore opens the live index for name, loading any persisted state.
func OpenStore(ctx context.Context, backend rag.Backend, name string, kind rag.SourceKind) (*Store, error) {
	idx, err := backend.Open(ctx, name)
	if err != nil {
		return nil, rag.Errorf(rag.KindIndex, "open "+name, err)
	}
	return &Store{name: name, kind: kind, backend: backend, idx: idx}, nil
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Kind returns the kind of record the store holds.
func (s *Store) Kind() rag.SourceKind { return s.kind }

// Search returns up to k hits for an L2-normalised query vector.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.idx.Search(ctx, query, k)
	if err != nil {
		return nil, rag.Errorf(rag.KindIndex, "search "+s.name, err)
	}
	return hits, nil
}

// Len returns the number of records in the store.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.idx.Len(ctx)
	if err != nil {
		return 0, rag.Errorf(rag.KindIndex, "count "+s.name, err)
	}
	return n, nil
}

// Add appends records to the live index, assigning IDs that continue the
// store's sequence, and persists the result. When persisting fails the
// appended records are removed again, so a failed Add is never searchable.
// The assigned records are returned.
func (s *Store) Add(ctx context.Context, recs []rag.Record, vecs [][]float32) ([]rag.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.idx.Len(ctx)
	if err != nil {
		return nil, rag.Errorf(rag.KindIndex, "count "+s.name, err)
	}
	assigned := assignIDs(recs, s.kind, n)
	if err := s.idx.Add(ctx, assigned, vecs); err != nil {
		return nil, rag.Errorf(rag.KindIndex, "add to "+s.name, err)
	}
	if err := s.backend.Commit(ctx, s.name, s.idx); err != nil {
		ids := make([]string, len(assigned))
		for i, r := range assigned {
			ids[i] = r.ID
		}
		if rmErr := s.idx.Remove(ctx, ids); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("undo add: %w", rmErr))
		}
		return nil, rag.Errorf(rag.KindIndex, "persist "+s.name, err)
	}
	return assigned, nil
}

// Staged is a fully built replacement index that has not been made live.
type Staged struct {
	store *Store
	idx   rag.Index
	count int
}

// Count returns the number of records in the staged index.
func (st *Staged) Count() int { return st.count }

// Discard releases a staged index that will not be committed.
func (st *Staged) Discard(ctx context.Context) error {
	return st.store.backend.Discard(ctx, st.store.name, st.idx)
}

// Stage builds a replacement index holding exactly recs. IDs restart at 1.
// The live index is untouched; a partially built index is discarded.
func (s *Store) Stage(ctx context.Context, recs []rag.Record, vecs [][]float32) (*Staged, error) {
	idx, err := s.backend.Stage(ctx, s.name)
	if err != nil {
		return nil, rag.Errorf(rag.KindIndex, "stage "+s.name, err)
	}
	if len(recs) > 0 {
		if err := idx.Add(ctx, assignIDs(recs, s.kind, 0), vecs); err != nil {
			if dErr := s.backend.Discard(ctx, s.name, idx); dErr != nil {
				err = errors.Join(err, dErr)
			}
			return nil, rag.Errorf(rag.KindIndex, "stage "+s.name, err)
		}
	}
	return &Staged{store: s, idx: idx, count: len(recs)}, nil
}

// Swap commits a staged index, makes it live and releases the index it
// replaced.
func (s *Store) Swap(ctx context.Context, st *Staged) error {
	s.mu.Lock()
	prev, err := s.swapLocked(ctx, st)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.retire(ctx, prev)
	return nil
}

// swapLocked commits st and returns the index it replaced. s.mu must be
// held for writing.
func (s *Store) swapLocked(ctx context.Context, st *Staged) (rag.Index, error) {
	if st.store != s {
		return nil, fmt.Errorf("kb: staged index belongs to %s, not %s", st.store.name, s.name)
	}
	if err := s.backend.Commit(ctx, s.name, st.idx); err != nil {
		return nil, rag.Errorf(rag.KindIndex, "commit "+s.name, err)
	}
	prev := s.idx
	s.idx = st.idx
	return prev, nil
}

// restoreLocked makes prev live again after a swap that must be undone.
// s.mu must be held for writing.
func (s *Store) restoreLocked(ctx context.Context, prev rag.Index) error {
	if err := s.backend.Commit(ctx, s.name, prev); err != nil {
		return rag.Errorf(rag.KindIndex, "restore "+s.name, err)
	}
	s.idx = prev
	return nil
}

// retire releases a replaced index. Failures only leak storage, so they are
// logged.
func (s *Store) retire(ctx context.Context, prev rag.Index) {
	if prev == nil {
		return
	}
	if err := s.backend.Discard(ctx, s.name, prev); err != nil {
		logging.FromContext(ctx).Warn("kb: failed to release replaced index",
			slog.String("store", s.name),
			slog.Any("error", err),
		)
	}
}

// assignIDs returns copies of recs with IDs numbered after offset and the
// store kind applied.
func assignIDs(recs []rag.Record, kind rag.SourceKind, offset int) []rag.Record {
	out := make([]rag.Record, len(recs))
	for i, r := range recs {
		r.ID = rag.FormatID(kind, offset+i+1)
		r.Kind = kind
		out[i] = r
	}
	return out
}
