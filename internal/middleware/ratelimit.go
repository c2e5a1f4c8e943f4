// Package middleware holds HTTP middleware shared by the API handlers.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. It guards the remediation
// endpoints so a stuck dashboard cannot kill processes in a loop.
type RateLimiter struct {
	perMinute int

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows perMinute requests per client host. Call Stop
// when done to release the reaper goroutine.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	rl := &RateLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
	}
	go rl.reapLoop()
	return rl
}

// Middleware wraps next with the rate limit check.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientHost(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded, retry later", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// Allow reports whether one more request from client fits its bucket.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[client]
	if !ok {
		rl.buckets[client] = &bucket{tokens: rl.perMinute - 1, lastRefill: now}
		return true
	}

	// Whole tokens only; partial refills wait for the next request.
	refill := int(now.Sub(b.lastRefill).Minutes() * float64(rl.perMinute))
	if refill > 0 {
		b.tokens = min(rl.perMinute, b.tokens+refill)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Stop shuts down the background reaper.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) reapLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.reap(time.Now())
		}
	}
}

// reap drops buckets idle long enough to be full again anyway.
func (rl *RateLimiter) reap(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, b := range rl.buckets {
		if now.Sub(b.lastRefill) > 10*time.Minute {
			delete(rl.buckets, client)
		}
	}
}

// clientHost keys buckets by remote IP so sequential connections from
// the same host share a bucket.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
