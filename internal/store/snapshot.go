package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/54b3r/supportrag-go/internal/rag"
)

// ErrNoSnapshot is returned by Load when no snapshot exists at the path.
var ErrNoSnapshot = errors.New("store: no snapshot")

// Entry is one persisted record together with the vector it was indexed
// under.
type Entry struct {
	Record rag.Record
	Vector []float32
}

// Snapshot is the persisted form of a single knowledge store.
type Snapshot struct {
	// Name is the store name (e.g. "faq_store").
	Name string
	// Dimension is the vector width shared by every entry.
	Dimension int
	// SavedAt is when the snapshot was written.
	SavedAt time.Time
	// Entries are kept in insertion order.
	Entries []Entry
}

const snapshotDDL = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
    seq     INTEGER PRIMARY KEY,
    id      TEXT    NOT NULL UNIQUE,
    record  TEXT    NOT NULL,  -- JSON-encoded rag.Record
    vector  BLOB    NOT NULL   -- little-endian float32
);
`

// Path returns the snapshot file path for a named store under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

// Save writes snap to path atomically: the snapshot is written to a
// temporary file in the same directory and renamed over path.
func Save(ctx context.Context, path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	_ = os.Remove(tmp)

	if err := writeSnapshot(ctx, tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: replace snapshot %s: %w", path, err)
	}
	return nil
}

func writeSnapshot(ctx context.Context, path string, snap *Snapshot) error {
	db, err := OpenDB(path, snapshotDDL)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	meta := map[string]string{
		"name":      snap.Name,
		"dimension": strconv.Itoa(snap.Dimension),
		"count":     strconv.Itoa(len(snap.Entries)),
		"saved_at":  savedAt.Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("store: write meta: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (seq, id, record, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range snap.Entries {
		if len(e.Vector) != snap.Dimension {
			return fmt.Errorf("store: entry %s has dimension %d, want %d", e.Record.ID, len(e.Vector), snap.Dimension)
		}
		rec, err := json.Marshal(e.Record)
		if err != nil {
			return fmt.Errorf("store: encode record %s: %w", e.Record.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i+1, e.Record.ID, string(rec), rag.EncodeVector(e.Vector)); err != nil {
			return fmt.Errorf("store: insert record %s: %w", e.Record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Load reads the snapshot at path. It returns ErrNoSnapshot when the file
// does not exist.
func Load(ctx context.Context, path string) (*Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}

	db, err := OpenDB(path, "")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("store: read meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()

	snap := &Snapshot{Name: meta["name"]}
	if snap.Dimension, err = strconv.Atoi(meta["dimension"]); err != nil {
		return nil, fmt.Errorf("store: snapshot %s has invalid dimension %q", path, meta["dimension"])
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta["saved_at"]); err == nil {
		snap.SavedAt = ts
	}

	rows, err = db.QueryContext(ctx, `SELECT record, vector FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: read records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		var blob []byte
		if err := rows.Scan(&raw, &blob); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e.Record); err != nil {
			return nil, fmt.Errorf("store: decode record: %w", err)
		}
		if e.Vector, err = rag.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("store: decode vector for %s: %w", e.Record.ID, err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: records rows: %w", err)
	}

	if want, err := strconv.Atoi(meta["count"]); err == nil && want != len(snap.Entries) {
		return nil, fmt.Errorf("store: snapshot %s is truncated: %d of %d records", path, len(snap.Entries), want)
	}
	return snap, nil
}
