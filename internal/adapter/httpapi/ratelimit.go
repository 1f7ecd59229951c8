package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter allows one request per client per interval.
type RateLimiter struct {
	mu   sync.Mutex
	last map[string]time.Time
	rate time.Duration
	now  func() time.Time
}

func NewRateLimiter(rate time.Duration) *RateLimiter {
	return &RateLimiter{last: make(map[string]time.Time), rate: rate, now: time.Now}
}

// Allow reports whether client may make a request now and records it.
func (r *RateLimiter) Allow(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if t, ok := r.last[client]; ok && now.Sub(t) < r.rate {
		return false
	}
	r.last[client] = now
	return true
}

// Middleware rejects requests over the limit with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.rate > 0 && !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
