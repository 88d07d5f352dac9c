package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/support"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full rebuild on POST /api/ingest.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the /api/* routes other than
	// the checks. A comma-separated list accepts any of its keys. Empty
	// disables auth.
	APIKey string
	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS headers entirely.
	CORSOrigins []string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// supportService is the engine surface the handlers call.
// *support.Service satisfies it; tests inject a fake.
type supportService interface {
	Query(ctx context.Context, question string, topK int) (*support.Response, error)
	Ingest(ctx context.Context, rebuild bool, progress func(msg string)) (*support.IngestResult, error)
	AddFAQ(ctx context.Context, question, answer, category string) (rag.Record, error)
	Stats(ctx context.Context) (*support.Stats, error)
	Health(ctx context.Context) support.Health
}

// Server is the HTTP server that exposes the support engine.
type Server struct {
	// svc answers queries and owns ingestion.
	svc supportService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the customer's question, 1..1000 characters.
	Question string `json:"question"`
	// TopK is the number of results per store, 1..10. Omitted means 3.
	TopK *int `json:"top_k,omitempty"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Rebuild discards persisted stores and rebuilds from the sources.
	Rebuild bool `json:"rebuild"`
}

// faqRequest is the JSON body for POST /api/faqs.
type faqRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// faqResponse is the JSON response for POST /api/faqs.
type faqResponse struct {
	// ID is the identifier assigned by the FAQ store.
	ID       string `json:"id"`
	Category string `json:"category"`
}

// healthResponse is the JSON response for GET /api/health.
type healthResponse struct {
	support.Health
	Version string `json:"version"`
}

// errorResponse is the JSON body of every non-2xx API response. Error is
// safe to show a client; internal details stay in the server log.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
