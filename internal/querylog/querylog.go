// Package querylog records one entry per answered query and aggregates the
// entries into summary statistics. Logging is best-effort: a failing sink
// never fails the query that produced the entry.
package querylog

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// ErrNoAggregator is returned by Multi.Aggregate when none of its sinks can
// aggregate.
var ErrNoAggregator = errors.New("querylog: no aggregating sink configured")

// Entry is a single query log record.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Query      string    `json:"query"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	LatencyMS  float64   `json:"latency_ms"`
	Citations  int       `json:"num_citations"`
	// Escalation is empty when the query was answered.
	Escalation string `json:"escalation,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// Summary aggregates a set of entries.
type Summary struct {
	TotalQueries        int            `json:"total_queries"`
	AvgLatencyMS        float64        `json:"avg_latency_ms"`
	AvgConfidence       float64        `json:"avg_confidence"`
	SourceBreakdown     map[string]int `json:"source_breakdown"`
	EscalationBreakdown map[string]int `json:"escalation_breakdown"`
}

// Sink persists entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Aggregator summarises previously recorded entries.
type Aggregator interface {
	Aggregate(ctx context.Context) (Summary, error)
}

// Recorder wraps a Sink and swallows its errors with a warning so callers
// can log unconditionally.
type Recorder struct {
	sink Sink
}

// NewRecorder returns a Recorder writing to sink. A nil sink discards.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record writes e, filling Timestamp when unset. Failures are logged, never
// returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := r.sink.Record(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("querylog: record failed",
			slog.String("query_id", e.ID),
			slog.Any("error", err),
		)
	}
}

// Multi fans entries out to several sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a Multi over sinks. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record writes e to every sink and joins their errors.
func (m *Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Aggregate delegates to the first sink that implements Aggregator.
func (m *Multi) Aggregate(ctx context.Context) (Summary, error) {
	for _, s := range m.sinks {
		if a, ok := s.(Aggregator); ok {
			return a.Aggregate(ctx)
		}
	}
	return Summary{}, ErrNoAggregator
}

// Close closes every sink that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// tally accumulates entries into a Summary.
type tally struct {
	n          int
	latency    float64
	confidence float64
	sources    map[string]int
	escalation map[string]int
}

func newTally() *tally {
	return &tally{sources: map[string]int{}, escalation: map[string]int{}}
}

func (t *tally) add(e Entry) {
	t.n++
	t.latency += e.LatencyMS
	t.confidence += e.Confidence
	t.sources[e.Source]++
	if e.Escalation != "" {
		t.escalation[e.Escalation]++
	}
}

func (t *tally) summary() Summary {
	s := Summary{
		TotalQueries:        t.n,
		SourceBreakdown:     t.sources,
		EscalationBreakdown: t.escalation,
	}
	if t.n > 0 {
		s.AvgLatencyMS = round(t.latency/float64(t.n), 2)
		s.AvgConfidence = round(t.confidence/float64(t.n), 4)
	}
	return s
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
