package middleware

import (
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-client sliding window limiter.
type RateLimiter struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
	swept   time.Time
}

func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	return &RateLimiter{
		requests: requests,
		window:   time.Duration(windowSeconds) * time.Second,
		now:      time.Now,
		clients:  make(map[string][]time.Time),
	}
}

// Allow records a request for key if it fits in the window. It returns the
// remaining budget and when the window frees up again.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	windowStart := now.Add(-rl.window)
	stamps := rl.clients[key]
	// drop timestamps that fell out of the window
	first := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(windowStart) })
	stamps = stamps[first:]

	if len(stamps) >= rl.requests {
		rl.clients[key] = stamps
		return false, 0, stamps[0].Add(rl.window)
	}

	stamps = append(stamps, now)
	rl.clients[key] = stamps
	return true, rl.requests - len(stamps), now.Add(rl.window)
}

// sweepLocked forgets idle clients at most once per window.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.swept) < rl.window {
		return
	}
	rl.swept = now
	for key, stamps := range rl.clients {
		if len(stamps) == 0 || now.Sub(stamps[len(stamps)-1]) > rl.window {
			delete(rl.clients, key)
		}
	}
}

// RateLimit returns a middleware that applies rate limiting per client IP
func RateLimit(requests int, windowSeconds int) func(http.Handler) http.Handler {
	return RateLimitWith(NewRateLimiter(requests, windowSeconds))
}

func RateLimitWith(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetTime := limiter.Allow(getClientIP(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retry := int64(time.Until(resetTime).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For: first entry is the original client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
