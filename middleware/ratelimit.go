package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// DeviceIDHeader carries the phone's install identifier on every request,
// including unauthenticated ones like login.
const DeviceIDHeader = "X-Device-ID"

const (
	limiterGCEvery = 5 * time.Minute
	limiterMaxIdle = 10 * time.Minute
)

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimit throttles per client with a token bucket. Phone fleets share
// carrier NAT egress IPs, so the device header is the bucket key whenever
// the client sends one; the client IP is only the anonymous fallback.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		buckets = make(map[string]*clientBucket)
		lastGC  = time.Now()
	)

	take := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if now.Sub(lastGC) > limiterGCEvery {
			for k, bk := range buckets {
				if now.Sub(bk.seen) > limiterMaxIdle {
					delete(buckets, k)
				}
			}
			lastGC = now
		}
		bk := buckets[key]
		if bk == nil {
			bk = &clientBucket{lim: rate.NewLimiter(r, b)}
			buckets[key] = bk
		}
		bk.seen = now
		return bk.lim.Allow()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(DeviceIDHeader)
		if key == "" {
			key = c.ClientIP()
		}
		if !take(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
