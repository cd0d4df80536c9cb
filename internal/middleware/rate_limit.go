package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"studybuddy-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-client limiter is kept.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cl, ok := r.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = cl
	}
	cl.lastSeen = now

	// sweep stale clients while holding the lock
	for k, c := range r.clients {
		if now.Sub(c.lastSeen) > limiterIdle {
			delete(r.clients, k)
		}
	}
	return cl.limiter
}

// Clients reports how many client buckets are tracked.
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Middleware rejects requests beyond the bucket with 429 and a Retry-After.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := r.get(ip)

		res := limiter.ReserveN(r.now(), 1)
		if !res.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		if delay := res.DelayFrom(r.now()); delay > 0 {
			res.CancelAt(r.now())
			retryAfter := int(math.Ceil(delay.Seconds()))
			logger.Warnf("rate limit exceeded for %s, retry after %ds", ip, retryAfter)

			c.Header("X-RateLimit-Limit", strconv.Itoa(r.burst))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please slow down",
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.TokensAt(r.now()))))
		c.Next()
	}
}

// RateLimit is a shorthand for NewRateLimiter(...).Middleware().
func RateLimit(requestsPerMinute, burst int) gin.HandlerFunc {
	return NewRateLimiter(requestsPerMinute, burst).Middleware()
}
