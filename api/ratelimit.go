/*
ratelimit.go - Per-caller request throttling

PURPOSE:
  Keeps one token bucket per caller (actor when identified, remote
  address otherwise) so a single client hammering reserve cannot starve
  everyone else. Buckets for idle callers are dropped after a grace
  period to bound memory.
*/
package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out a token bucket per caller.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter

	limit rate.Limit
	burst int
}

// NewRateLimiter allows `perSecond` sustained requests with the given
// burst per caller.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(caller string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if lim, ok := rl.visitors[caller]; ok {
		return lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.visitors[caller] = lim

	// Drop the bucket after 10 minutes; a returning caller gets a fresh one.
	go func() {
		time.Sleep(10 * time.Minute)
		rl.mu.Lock()
		delete(rl.visitors, caller)
		rl.mu.Unlock()
	}()

	return lim
}

// Limit is the chi-compatible middleware.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(ActorHeader)
		if caller == "" {
			caller = r.RemoteAddr
		}
		if !rl.limiter(caller).Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
