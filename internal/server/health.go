package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// checkTimeout bounds each dependency check on /api/ready.
const checkTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability. Ping must be
// safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses.
	Name() string
}

// optionalPinger marks a dependency whose failure degrades answers without
// making the service unready. Queries still return retrieved context when
// generation is down, so the LLM check is optional.
type optionalPinger interface {
	Optional() bool
}

func isOptional(p Pinger) bool {
	o, ok := p.(optionalPinger)
	return ok && o.Optional()
}

// readyCheck is one dependency's check result.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	// Ready is false when any required check failed.
	Ready bool `json:"ready"`
	// Degraded is true when only optional checks failed.
	Degraded bool         `json:"degraded,omitempty"`
	Checks   []readyCheck `json:"checks"`
}

// checkAll runs every pinger concurrently and returns results in input order.
func checkAll(ctx context.Context, pingers []Pinger) []readyCheck {
	checks := make([]readyCheck, len(pingers))
	var g errgroup.Group
	for i, p := range pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(pctx)
			c := readyCheck{
				Name:      p.Name(),
				OK:        err == nil,
				Optional:  isOptional(p),
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				c.Error = err.Error()
			}
			checks[i] = c
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

// handleReady reports 200 when every required dependency answers and 503
// otherwise. /api/health stays a liveness check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: checkAll(r.Context(), s.pingers)}
	for _, c := range resp.Checks {
		if c.OK {
			continue
		}
		log.Warn("server: readiness check failed",
			slog.String("dependency", c.Name),
			slog.Bool("optional", c.Optional),
			slog.String("error", c.Error),
		)
		if c.Optional {
			resp.Degraded = true
		} else {
			resp.Ready = false
		}
	}
	if resp.Checks == nil {
		resp.Checks = []readyCheck{}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp, log)
}
