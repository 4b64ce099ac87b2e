// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with one bucket
// per acting user (or client IP for anonymous callers). Idle buckets are
// swept on a timer piggybacked on lookups.
//
// Notes:
//   - The limiter is process-local. Horizontally scaled deployments need a
//     shared limiter in front of the service to enforce global limits.
//   - Replayed sends (see IdempotencyValidator) never consume tokens, so a
//     client retrying a timed-out send is not punished for it.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultBucketIdle = 10 * time.Minute
	defaultSweepEvery = time.Minute
)

// KeyFunc selects the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated requests by user id ("user:<id>") and
// anonymous ones by client address ("ip:<addr>").
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if s := userIDFromCtx(c); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	idle      time.Duration
	sweep     time.Duration
	lastSweep time.Time

	now func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		idle:      defaultBucketIdle,
		sweep:     defaultSweepEvery,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// bucketFor returns the limiter for key, creating it on first use. Buckets
// idle for longer than rl.idle are dropped at most once per rl.sweep.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.sweep {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether IdempotencyValidator flagged this request as a
// replay that must not be limited.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. Rejected requests get 429 with a Retry-After
// derived from the bucket's refill rate:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 2
//	{ "request_id": "<uuid>", "code": "too_many_requests", "message": "rate limit exceeded" }
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	limit := strconv.Itoa(rl.burst)
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.bucketFor(rl.keyFn(c), now)
		c.Header("X-RateLimit-Limit", limit)

		retry := rl.refill()
		if r := lim.ReserveN(now, 1); r.OK() {
			delay := r.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			r.CancelAt(now)
			// A zero rate never refills; DelayFrom reports InfDuration.
			if delay != rate.InfDuration && rl.rps > 0 {
				retry = delay
			}
		}
		c.Header("Retry-After", strconv.Itoa(retrySeconds(retry)))
		rateLimited.Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// refill is the time one token takes to come back; a minute for rps <= 0.
func (rl *RateLimiter) refill() time.Duration {
	if rl.rps <= 0 || math.IsInf(float64(rl.rps), 1) {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(rl.rps))
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
