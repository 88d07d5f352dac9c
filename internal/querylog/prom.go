package querylog

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prom exports entries as Prometheus metrics. It does not aggregate; use it
// alongside a JSONL or SQLite sink in a Multi.
type Prom struct {
	queries     *prometheus.CounterVec
	escalations *prometheus.CounterVec
	confidence  prometheus.Histogram
	latency     *prometheus.HistogramVec
}

// NewProm registers the query metrics against reg.
func NewProm(reg prometheus.Registerer) *Prom {
	factory := promauto.With(reg)
	return &Prom{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportrag",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of answered queries, partitioned by answering source.",
		}, []string{"source"}),

		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportrag",
			Subsystem: "query",
			Name:      "escalations_total",
			Help:      "Queries handed to a human, partitioned by reason.",
		}, []string{"reason"}),

		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "supportrag",
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Top-1 similarity of the answering store.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supportrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency including generation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
	}
}

// Record implements Sink.
func (p *Prom) Record(_ context.Context, e Entry) error {
	p.queries.WithLabelValues(e.Source).Inc()
	if e.Escalation != "" {
		p.escalations.WithLabelValues(e.Escalation).Inc()
	}
	p.confidence.Observe(e.Confidence)
	p.latency.WithLabelValues(e.Source).Observe(e.LatencyMS / 1000)
	return nil
}
