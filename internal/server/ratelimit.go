package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/supportrag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-client rate on /api/* routes.
	defaultRateLimit = 10
	// defaultRateBurst lets an agent console fire a few queries back to back.
	defaultRateBurst = 20
	// defaultClientTTL is how long an idle client bucket is retained.
	defaultClientTTL = 5 * time.Minute
)

// kindRateLimited is the error kind reported in 429 bodies.
const kindRateLimited = "rate_limited"

// clientBucket is one caller's token bucket.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client token bucket on the protected API
// routes. Idle buckets are evicted by a background loop.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket

	rps   rate.Limit
	burst int
	ttl   time.Duration
	log   *slog.Logger

	// onReject, when set, is called with the request path of every
	// rejected request.
	onReject func(path string)
}

// newRateLimiter starts a limiter and its eviction loop. The returned stop
// function ends the loop and is safe to call once.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     defaultClientTTL,
		log:     log,
	}

	done := make(chan struct{})
	go rl.evictLoop(done)
	return rl, func() { close(done) }
}

func (rl *rateLimiter) bucket(client string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (rl *rateLimiter) evictLoop(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// evict drops buckets idle for longer than the TTL.
func (rl *rateLimiter) evict(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.ttl)
	n := 0
	for client, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, client)
			n++
		}
	}
	return n
}

// size reports the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// middleware rejects over-limit requests with 429, a Retry-After header and
// the API's JSON error body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		client := clientIP(r)
		lim := rl.bucket(client, now)

		if !lim.AllowN(now, 1) {
			logging.FromContext(r.Context()).Warn("server: rate limit exceeded",
				slog.String("client", client),
				slog.String("path", r.URL.Path),
			)
			if rl.onReject != nil {
				rl.onReject(r.URL.Path)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(lim, now)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", kindRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds is the wait until the next token, at least one second.
func retryAfterSeconds(lim *rate.Limiter, now time.Time) int {
	tokens := lim.TokensAt(now)
	if lim.Limit() <= 0 || tokens >= 1 {
		return 1
	}
	wait := (1 - tokens) / float64(lim.Limit())
	if wait > 3600 {
		return 3600
	}
	return max(1, int(math.Ceil(wait)))
}

// clientIP returns the remote address without its port. Forwarding headers
// are ignored; the server binds to loopback unless told otherwise.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
