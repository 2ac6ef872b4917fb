package auth

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket guarding the webhook endpoint
// against a misbehaving or looping GitBucket instance
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	burst    int
	interval time.Duration // time to earn one token
	now      func() time.Time
}

type tokenBucket struct {
	tokens   int
	lastFill time.Time
}

// NewRateLimiter allows burst requests at once and perMinute sustained
// requests per client. It returns nil when either value is not positive,
// which CheckRateLimit and RateLimitMiddleware treat as unlimited.
func NewRateLimiter(burst, perMinute int) *RateLimiter {
	if burst <= 0 || perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		buckets:  make(map[string]*tokenBucket),
		burst:    burst,
		interval: time.Minute / time.Duration(perMinute),
		now:      time.Now,
	}
}

// Allow takes a token for clientID, reporting false when none is left
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[clientID]
	if !ok {
		bucket = &tokenBucket{tokens: rl.burst, lastFill: now}
		rl.buckets[clientID] = bucket
	}

	if earned := int(now.Sub(bucket.lastFill) / rl.interval); earned > 0 {
		bucket.tokens = min(bucket.tokens+earned, rl.burst)
		bucket.lastFill = bucket.lastFill.Add(time.Duration(earned) * rl.interval)
	}

	if bucket.tokens == 0 {
		return false
	}
	bucket.tokens--
	return true
}

// RetryAfter is the wait until the next token
func (rl *RateLimiter) RetryAfter() time.Duration {
	return rl.interval
}

// Prune drops buckets that have been refilled completely, bounding memory
// for clients that stopped sending
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	full := time.Duration(rl.burst) * rl.interval
	now := rl.now()
	removed := 0
	for id, bucket := range rl.buckets {
		if now.Sub(bucket.lastFill) >= full {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// GetClientIP returns the first X-Forwarded-For address, then X-Real-IP,
// then the host part of RemoteAddr
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// CheckRateLimit writes a 429 and returns false when the client is over its
// limit. A nil limiter allows everything.
func CheckRateLimit(rl *RateLimiter, w http.ResponseWriter, r *http.Request) bool {
	if rl == nil || rl.Allow(GetClientIP(r)) {
		return true
	}

	seconds := int(rl.RetryAfter().Round(time.Second) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
	return false
}

// RateLimitMiddleware applies CheckRateLimit in front of next
func RateLimitMiddleware(rl *RateLimiter, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CheckRateLimit(rl, w, r) {
			next.ServeHTTP(w, r)
		}
	})
}
