// Package server implements the HTTP API that exposes the support engine:
// query, ingestion, incremental FAQ add, statistics, liveness, readiness and
// Prometheus metrics. The server is started by the `supportrag serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/rag"
	"github.com/54b3r/supportrag-go/internal/support"
	"github.com/54b3r/supportrag-go/internal/version"
)

// maxBodyBytes bounds request bodies; the largest legitimate body is a
// 1000-character question or one FAQ.
const maxBodyBytes = 64 << 10

// New constructs a Server from the provided service and config.
func New(svc *support.Service, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: support service must not be nil")
	}
	return newServer(svc, cfg), nil
}

func newServer(svc supportService, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set, authentication disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stop
	rl.onReject = func(path string) { s.metrics.rateLimitedTotal.WithLabelValues(path).Inc() }
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protect(s.handleQuery))
	mux.Handle("POST /api/ingest", protect(s.handleIngest))
	mux.Handle("POST /api/faqs", protect(s.handleAddFAQ))
	mux.Handle("GET /api/stats", protect(s.handleStats))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	var handler http.Handler = requestLogger(s.log, s.metrics.middleware(mux))
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
		}).Handler(handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.metrics.observeQuery(outcomeInvalid, start)
		writeBodyError(w, err)
		return
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK < 1 {
			s.metrics.observeQuery(outcomeInvalid, start)
			writeError(w, http.StatusUnprocessableEntity, "top_k must be between 1 and 10", rag.KindValidation)
			return
		}
		topK = *req.TopK
	}

	resp, err := s.svc.Query(r.Context(), req.Question, topK)
	if err != nil {
		outcome := s.writeServiceError(w, r, err, "failed to process query")
		s.metrics.observeQuery(outcome, start)
		return
	}

	outcome := outcomeAnswered
	if resp.Escalation != "" {
		outcome = outcomeEscalated
	}
	s.metrics.observeQuery(outcome, start)
	s.metrics.querySource.WithLabelValues(resp.Source).Inc()

	writeJSON(w, http.StatusOK, resp, log)
}

// handleIngest handles POST /api/ingest. The body is optional; an empty
// body means rebuild=false.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req ingestRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeBodyError(w, err)
			return
		}
	}

	s.metrics.ingestInFlight.Inc()
	defer s.metrics.ingestInFlight.Dec()

	res, err := s.svc.Ingest(r.Context(), req.Rebuild, func(msg string) {
		log.Info("ingest progress", slog.String("step", msg))
	})
	if err != nil {
		s.writeServiceError(w, r, err, "ingestion failed")
		return
	}
	writeJSON(w, http.StatusOK, res, log)
}

// handleAddFAQ handles POST /api/faqs.
func (s *Server) handleAddFAQ(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req faqRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	rec, err := s.svc.AddFAQ(r.Context(), req.Question, req.Answer, req.Category)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to add faq")
		return
	}
	writeJSON(w, http.StatusCreated, faqResponse{ID: rec.ID, Category: rec.Category}, log)
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, st, log)
}

// handleHealth handles GET /api/health for liveness checks. It always
// returns 200; store cardinality tells operators whether ingestion ran.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{Health: s.svc.Health(r.Context()), Version: version.Version}, log)
}

// writeServiceError maps a service error to a status code and a client-safe
// body, logs the detail, and returns the metrics outcome label.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) string {
	log := logging.FromContext(r.Context())

	if errors.Is(err, support.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable,
			"knowledge base not initialized, run POST /api/ingest first", rag.KindInternal)
		return outcomeError
	}

	kind := rag.KindOf(err)
	if kind == rag.KindValidation {
		var re *rag.Error
		detail := "invalid request"
		if errors.As(err, &re) && re.Err != nil {
			detail = re.Err.Error()
		}
		writeError(w, http.StatusUnprocessableEntity, detail, kind)
		return outcomeInvalid
	}

	log.Error(msg, slog.String("kind", string(kind)), slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, msg, kind)
	return outcomeError
}

// decodeBody decodes a size-bounded JSON body. Unknown fields are ignored.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// writeBodyError maps a decodeBody failure to 413 for an oversized body and
// 422 validation otherwise, naming the offending field when known.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", rag.KindValidation)
		return
	}
	msg := "invalid request body"
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		msg = fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type)
	}
	writeError(w, http.StatusUnprocessableEntity, msg, rag.KindValidation)
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, kind rag.ErrorKind) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Kind: string(kind)})
}
