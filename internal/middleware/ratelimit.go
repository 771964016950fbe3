package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// InMemoryRateLimiter is a sliding-window limiter per key. It is local to one
// instance; the delivery-code guard does not depend on it.
type InMemoryRateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

func NewInMemoryRateLimiter(limit int, window time.Duration) *InMemoryRateLimiter {
	r := &InMemoryRateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
	go r.sweep()
	return r
}

// Allow records a hit for key. When the window is full it returns false and
// how long until the oldest hit expires.
func (r *InMemoryRateLimiter) Allow(key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	live := prune(r.hits[key], now.Add(-r.window))
	if len(live) >= r.limit {
		r.hits[key] = live
		return false, live[0].Add(r.window).Sub(now)
	}
	r.hits[key] = append(live, now)
	return true, 0
}

// prune drops hits at or before cutoff; hits are in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (r *InMemoryRateLimiter) sweep() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for range tick.C {
		r.mu.Lock()
		cutoff := time.Now().Add(-r.window)
		for k, hits := range r.hits {
			if live := prune(hits, cutoff); len(live) == 0 {
				delete(r.hits, k)
			} else {
				r.hits[k] = live
			}
		}
		r.mu.Unlock()
	}
}

// RateLimit limits per route template, by authenticated user when known and
// by client IP otherwise.
func RateLimit(limiter *InMemoryRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := "ip:" + c.ClientIP()
		if uid := GetUserID(c); uid != 0 {
			caller = "user:" + strconv.FormatUint(uint64(uid), 10)
		}
		ok, wait := limiter.Allow(c.FullPath() + "|" + caller)
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retry_after_seconds": secs})
			return
		}
		c.Next()
	}
}
