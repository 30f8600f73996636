package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter rate-limits unauthenticated requests per client IP. The
// per-principal token buckets only apply after authentication; this keeps
// credential-stuffing traffic off the login endpoint.
type LoginLimiter struct {
	ips             map[string]*rate.Limiter
	mu              sync.RWMutex
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
	stop            chan struct{}
	once            sync.Once
}

// NewLoginLimiter creates a new per-IP limiter. Close must be called to stop
// the background cleanup goroutine.
func NewLoginLimiter(rps float64, burst int) *LoginLimiter {
	rl := &LoginLimiter{
		ips:             make(map[string]*rate.Limiter),
		rps:             rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 10 * time.Minute,
		stop:            make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (rl *LoginLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stop)
	})
}

// GetLimiter returns a limiter for an IP
func (rl *LoginLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.ips[ip] = limiter
	}

	return limiter
}

// cleanup periodically resets the map to free memory from drive-by IPs.
// Active clients get a fresh limiter on their next request.
func (rl *LoginLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			rl.ips = make(map[string]*rate.Limiter)
			rl.mu.Unlock()
		}
	}
}

// LoginRateLimitMiddleware applies the per-IP limit to a route group.
func LoginRateLimitMiddleware(rl *LoginLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getIPAddress(r)

			limiter := rl.GetLimiter(ip)
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
