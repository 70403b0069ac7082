package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/api"
)

// SecurityHeadersMiddleware sets the standard browser hardening headers on
// every response. The gateway serves JSON and document artifacts only, so the
// CSP locks everything to 'self'.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter is a per-client token bucket. Buckets refill whole windows at a
// time rather than continuously, which keeps Allow a couple of map operations.
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientBucket
	limit       int
	window      time.Duration
	stopCleanup chan struct{}
	logger      *logrus.Logger
}

type clientBucket struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
// for each client.
func NewRateLimiter(limit int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients:     make(map[string]*clientBucket),
		limit:       limit,
		window:      window,
		stopCleanup: make(chan struct{}),
		logger:      logger,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops buckets for clients that have gone quiet so the map does not
// grow without bound.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, bucket := range rl.clients {
				if now.Sub(bucket.lastSeen) > rl.window*2 {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop terminates the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}

// Allow reports whether another request from the given client fits the
// current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	bucket, exists := rl.clients[key]
	if !exists || now.Sub(bucket.lastSeen) >= rl.window {
		rl.clients[key] = &clientBucket{tokens: rl.limit - 1, lastSeen: now}
		return true
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		bucket.lastSeen = now
		return true
	}
	return false
}

// getClientKey derives the rate-limit key for a request. Only the first entry
// of X-Forwarded-For counts; the rest of the chain is appended by proxies and
// would let a client pick its own bucket.
func getClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware rejects over-limit requests with the gateway's JSON
// error envelope.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := getClientKey(r)

			if !limiter.Allow(clientKey) {
				limiter.logger.WithFields(logrus.Fields{
					"client": clientKey,
					"path":   r.URL.Path,
				}).Warn("Rate limit exceeded")

				api.ErrRateLimited.WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
