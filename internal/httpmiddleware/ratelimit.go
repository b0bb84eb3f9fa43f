// Package httpmiddleware carries gin middleware that is not tied to auth.
package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimiter is an in-memory per-client token bucket. Good enough for
// the single-instance kiosk deployment; a multi-instance setup would move
// the buckets to redis.
type IPRateLimiter struct {
	capacity  float64
	perSecond float64

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	sweepAt time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// NewIPRateLimiter allows perMinute requests per client IP with bursts up
// to capacity. A non-positive capacity defaults to one minute's worth.
func NewIPRateLimiter(capacity, perMinute int) *IPRateLimiter {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &IPRateLimiter{
		capacity:  float64(capacity),
		perSecond: float64(perMinute) / 60,
		buckets:   make(map[string]*tokenBucket),
		sweepAt:   time.Now().Add(10 * time.Minute),
	}
}

// Middleware rejects over-limit requests with 429.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.take(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *IPRateLimiter) take(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &tokenBucket{tokens: l.capacity - 1, seen: now}
		return true
	}
	b.tokens += now.Sub(b.seen).Seconds() * l.perSecond
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle long enough to have fully refilled anyway.
// Caller holds the lock.
func (l *IPRateLimiter) sweep(now time.Time) {
	idle := time.Duration(l.capacity/l.perSecond) * time.Second
	for key, b := range l.buckets {
		if now.Sub(b.seen) > idle {
			delete(l.buckets, key)
		}
	}
	l.sweepAt = now.Add(10 * time.Minute)
}
