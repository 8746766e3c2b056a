package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nhasan/ghtracker/internal/auth"
)

// staleAfter is how long an idle caller's limiter is kept before the sweep
// drops it.
const staleAfter = 10 * time.Minute

// RateLimiter applies a token-bucket limit per caller. Authenticated
// requests are keyed by user ID so one user cannot consume another's budget
// from a second address; anonymous requests fall back to the client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	limit    int // advertised per-minute limit
	lastSwep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests sustained with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limit:    perMinute,
		lastSwep: time.Now(),
	}
}

// Middleware enforces the limit. Rejected requests get 429 with the same
// error shape the API uses everywhere else, plus Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		limiter := rl.limiterFor(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "rate limit exceeded, slow down",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSwep) > staleAfter {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > staleAfter {
				delete(rl.limiters, k)
			}
		}
		rl.lastSwep = now
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

// callerKey identifies the caller: the authenticated user when the auth
// middleware ran first, the remote IP otherwise.
func callerKey(r *http.Request) string {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
