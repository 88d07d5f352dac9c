package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/54b3r/supportrag-go/internal/store"
)

const queryLogDDL = `
CREATE TABLE IF NOT EXISTS query_log (
	id            TEXT PRIMARY KEY,
	ts            TEXT NOT NULL,
	query         TEXT NOT NULL,
	source        TEXT NOT NULL,
	confidence    REAL NOT NULL,
	latency_ms    REAL NOT NULL,
	num_citations INTEGER NOT NULL,
	escalation    TEXT NOT NULL DEFAULT '',
	top_k         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_query_log_ts ON query_log(ts);
`

// SQLite stores entries in a query_log table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the query log database at path. Use
// ":memory:" in tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := store.OpenDB(path, queryLogDDL)
	if err != nil {
		return nil, fmt.Errorf("querylog: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Record implements Sink. Entries without an ID get a timestamp-derived one.
func (s *SQLite) Record(ctx context.Context, e Entry) error {
	id := e.ID
	if id == "" {
		id = fmt.Sprintf("q-%d", e.Timestamp.UnixNano())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (id, ts, query, source, confidence, latency_ms, num_citations, escalation, top_k)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Query, e.Source,
		e.Confidence, e.LatencyMS, e.Citations, e.Escalation, e.TopK,
	)
	if err != nil {
		return fmt.Errorf("querylog: insert: %w", err)
	}
	return nil
}

// Aggregate implements Aggregator.
func (s *SQLite) Aggregate(ctx context.Context) (Summary, error) {
	var (
		n                   int
		latency, confidence float64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(latency_ms), 0), COALESCE(AVG(confidence), 0) FROM query_log`,
	).Scan(&n, &latency, &confidence)
	if err != nil {
		return Summary{}, fmt.Errorf("querylog: aggregate: %w", err)
	}

	sources, err := s.breakdown(ctx, `SELECT source, COUNT(*) FROM query_log GROUP BY source`)
	if err != nil {
		return Summary{}, err
	}
	escalations, err := s.breakdown(ctx,
		`SELECT escalation, COUNT(*) FROM query_log WHERE escalation != '' GROUP BY escalation`)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		TotalQueries:        n,
		AvgLatencyMS:        round(latency, 2),
		AvgConfidence:       round(confidence, 4),
		SourceBreakdown:     sources,
		EscalationBreakdown: escalations,
	}, nil
}

func (s *SQLite) breakdown(ctx context.Context, q string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querylog: breakdown: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("querylog: breakdown scan: %w", err)
		}
		out[key] = n
	}
	return out, rows.Err()
}
