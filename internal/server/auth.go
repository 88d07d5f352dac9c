package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// kindUnauthorized is the error kind reported in 401 bodies.
const kindUnauthorized = "unauthorized"

// authMiddleware enforces "Authorization: Bearer <key>" on the wrapped
// handler. apiKeys is a comma-separated list so a key can be rotated without
// downtime; an empty list disables auth. Token values are never logged.
func authMiddleware(apiKeys string, next http.Handler) http.Handler {
	digests := keyDigests(apiKeys)
	if len(digests) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing bearer token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="supportrag"`)
			writeError(w, http.StatusUnauthorized, "authorization required", kindUnauthorized)
			return
		}
		if !matchesAny(digests, token) {
			log.Warn("auth: invalid token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="supportrag" error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token", kindUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyDigests hashes each configured key so comparisons run in constant time
// regardless of key length.
func keyDigests(apiKeys string) [][sha256.Size]byte {
	var out [][sha256.Size]byte
	for _, k := range strings.Split(apiKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, sha256.Sum256([]byte(k)))
		}
	}
	return out
}

func matchesAny(digests [][sha256.Size]byte, token string) bool {
	got := sha256.Sum256([]byte(token))
	ok := 0
	for _, d := range digests {
		ok |= subtle.ConstantTimeCompare(got[:], d[:])
	}
	return ok == 1
}

// bearerToken returns the token of an "Authorization: Bearer <token>"
// header, or "" when absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
